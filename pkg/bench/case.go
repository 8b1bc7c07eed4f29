// Package bench evaluates an agent against MedCalc-Bench style datasets:
// each case is a patient note, a question and a ground truth answer with an
// accepted range.
package bench

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/csv"
	"github.com/scottdavis/metatool/pkg/errors"
)

// Case is one evaluation instance.
type Case struct {
	CalculatorID   string `json:"calculator_id"`
	CalculatorName string `json:"calculator_name"`
	Category       string `json:"category"`
	NoteID         string `json:"note_id"`
	PatientNote    string `json:"patient_note"`
	Question       string `json:"question"`
	GroundTruth    string `json:"ground_truth"`
	// Lower and Upper bound accepted numeric answers. Both are nil for
	// answers compared as text.
	Lower *float64 `json:"lower_limit,omitempty"`
	Upper *float64 `json:"upper_limit,omitempty"`
}

// Key identifies a case across runs.
func (c Case) Key() string {
	return c.CalculatorID + ":" + c.NoteID
}

// Dataset column names.
const (
	colCalculatorID   = "Calculator ID"
	colCalculatorName = "Calculator Name"
	colCategory       = "Category"
	colNoteID         = "Note ID"
	colPatientNote    = "Patient Note"
	colQuestion       = "Question"
	colGroundTruth    = "Ground Truth Answer"
	colLower          = "Lower Limit"
	colUpper          = "Upper Limit"
)

var csvColumns = []string{
	colCalculatorID, colCalculatorName, colCategory, colNoteID,
	colPatientNote, colQuestion, colGroundTruth, colLower, colUpper,
}

// LoadCSV reads cases from a MedCalc-Bench CSV export. Columns not used by
// the evaluation are skipped.
func LoadCSV(r io.Reader) ([]Case, error) {
	types := make(map[string]arrow.DataType, len(csvColumns))
	for _, name := range csvColumns {
		types[name] = arrow.BinaryTypes.String
	}
	reader := csv.NewInferringReader(r,
		csv.WithHeader(true),
		csv.WithChunk(512),
		csv.WithColumnTypes(types),
		csv.WithIncludeColumns(csvColumns),
	)
	defer reader.Release()

	var cases []Case
	for reader.Next() {
		rec := reader.Record()
		cols := make(map[string]*array.String, len(csvColumns))
		for i, field := range rec.Schema().Fields() {
			if col, ok := rec.Column(i).(*array.String); ok {
				cols[field.Name] = col
			}
		}
		for row := 0; row < int(rec.NumRows()); row++ {
			value := func(name string) string {
				col := cols[name]
				if col == nil || col.IsNull(row) {
					return ""
				}
				// Value aliases the record buffer, which the next batch reuses.
				return strings.Clone(strings.TrimSpace(col.Value(row)))
			}
			c := Case{
				CalculatorID:   value(colCalculatorID),
				CalculatorName: value(colCalculatorName),
				Category:       value(colCategory),
				NoteID:         value(colNoteID),
				PatientNote:    value(colPatientNote),
				Question:       value(colQuestion),
				GroundTruth:    value(colGroundTruth),
			}
			lower, lowerErr := parseLimit(value(colLower))
			upper, upperErr := parseLimit(value(colUpper))
			if lowerErr != nil || upperErr != nil {
				return nil, errors.WithFields(
					errors.New(errors.InvalidInput, "invalid answer limits"),
					errors.Fields{"case": c.Key(), "lower": value(colLower), "upper": value(colUpper)})
			}
			c.Lower, c.Upper = lower, upper
			cases = append(cases, c)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read dataset CSV")
	}
	return cases, nil
}

// LoadJSONL reads one JSON encoded Case per line. Blank lines are skipped.
func LoadJSONL(r io.Reader) ([]Case, error) {
	var cases []Case
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c Case
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.InvalidInput, "invalid dataset line"),
				errors.Fields{"line": line})
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read dataset")
	}
	return cases, nil
}

// LoadFile picks the loader by extension: .csv or JSON lines otherwise.
func LoadFile(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ResourceNotFound, "failed to open dataset"),
			errors.Fields{"path": path})
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return LoadCSV(f)
	}
	return LoadJSONL(f)
}

// Filter keeps cases whose calculator ID is in ids. No ids keeps all.
func Filter(cases []Case, ids ...string) []Case {
	if len(ids) == 0 {
		return cases
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[strings.TrimSpace(id)] = true
	}
	var out []Case
	for _, c := range cases {
		if keep[c.CalculatorID] {
			out = append(out, c)
		}
	}
	return out
}

func parseLimit(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
