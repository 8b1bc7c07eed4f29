package bench

import (
	"sort"
	"strconv"
	"strings"

	"github.com/scottdavis/metatool/pkg/configuration"
)

// Record is the outcome of evaluating one case.
type Record struct {
	CalculatorID string `json:"calculator_id"`
	NoteID       string `json:"note_id"`
	Category     string `json:"category"`
	Expected     string `json:"expected_tool"`
	Tool         string `json:"tool,omitempty"`
	Answer       string `json:"answer"`
	GroundTruth  string `json:"ground_truth"`
	Correct      bool   `json:"correct"`
	Error        string `json:"error,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
}

// Key matches Case.Key.
func (r Record) Key() string {
	return r.CalculatorID + ":" + r.NoteID
}

// ToolMatched reports whether the resolved tool is the case's calculator.
func (r Record) ToolMatched() bool {
	return r.Tool != "" && strings.EqualFold(r.Tool, r.Expected)
}

// FormatAnswer renders an agent value for comparison and storage.
func FormatAnswer(v any) string {
	if v == nil {
		return ""
	}
	return configuration.FormatValue(v)
}

// Check reports whether answer is correct for c. Numeric ground truths with
// limits accept any number inside [Lower, Upper]; everything else compares
// trimmed text.
func Check(c Case, answer string) bool {
	answer = strings.TrimSpace(answer)
	if answer == "" || strings.EqualFold(answer, "N/A") {
		return false
	}
	if c.Lower != nil && c.Upper != nil {
		if f, err := strconv.ParseFloat(answer, 64); err == nil {
			return *c.Lower <= f && f <= *c.Upper
		}
	}
	return answer == strings.TrimSpace(c.GroundTruth)
}

// Tally counts results in one group.
type Tally struct {
	Total       int     `json:"total"`
	Correct     int     `json:"correct"`
	Errors      int     `json:"errors"`
	ToolMatched int     `json:"tool_matched"`
	Accuracy    float64 `json:"accuracy"`
}

func (t *Tally) add(r Record) {
	t.Total++
	if r.Correct {
		t.Correct++
	}
	if r.Error != "" {
		t.Errors++
	}
	if r.ToolMatched() {
		t.ToolMatched++
	}
	t.Accuracy = float64(t.Correct) / float64(t.Total)
}

// Stats summarizes an evaluation.
type Stats struct {
	Overall      Tally            `json:"overall"`
	ByCategory   map[string]Tally `json:"by_category"`
	ByCalculator map[string]Tally `json:"by_calculator_id"`
}

// ComputeStats tallies records overall, per category and per calculator.
func ComputeStats(records []Record) *Stats {
	s := &Stats{
		ByCategory:   make(map[string]Tally),
		ByCalculator: make(map[string]Tally),
	}
	for _, r := range records {
		s.Overall.add(r)

		cat := s.ByCategory[r.Category]
		cat.add(r)
		s.ByCategory[r.Category] = cat

		calc := s.ByCalculator[r.CalculatorID]
		calc.add(r)
		s.ByCalculator[r.CalculatorID] = calc
	}
	return s
}

// CalculatorIDs returns the calculator IDs in numeric order where they are
// numbers, text order otherwise.
func (s *Stats) CalculatorIDs() []string {
	ids := make([]string, 0, len(s.ByCalculator))
	for id := range s.ByCalculator {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		if (errA == nil) != (errB == nil) {
			return errA == nil
		}
		return ids[i] < ids[j]
	})
	return ids
}
