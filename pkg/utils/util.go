package utils

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/scottdavis/metatool/pkg/errors"
)

var fencedJSON = regexp.MustCompile("(?s)```json(.*?)```")

// ExtractFencedJSON returns the body of the first ```json fenced block.
func ExtractFencedJSON(response string) (string, error) {
	match := fencedJSON.FindStringSubmatch(response)
	if match == nil {
		return "", errors.WithFields(
			errors.New(errors.InvalidResponse, "no fenced json block in response"),
			errors.Fields{
				"error_type":   "missing_block",
				"data_preview": truncateString(response, 100),
				"data_length":  len(response),
			})
	}
	body := strings.TrimSpace(match[1])
	if body == "" {
		return "", errors.New(errors.InvalidResponse, "empty fenced json block")
	}
	return body, nil
}

// ParseFenced extracts the first ```json block of response and decodes it
// into T. Malformed JSON gets one repair pass before failing.
func ParseFenced[T any](response string) (T, error) {
	var result T
	body, err := ExtractFencedJSON(response)
	if err != nil {
		return result, err
	}
	if err := unmarshalJSON(body, &result); err != nil {
		return result, err
	}
	return result, nil
}

// ParseJSONResponse attempts to parse a string response as a JSON object.
func ParseJSONResponse(response string) (map[string]any, error) {
	var result map[string]any
	if err := unmarshalJSON(response, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func unmarshalJSON(data string, dst any) error {
	err := json.Unmarshal([]byte(data), dst)
	if err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(data)
	if repairErr == nil {
		if err = json.Unmarshal([]byte(repaired), dst); err == nil {
			return nil
		}
	}
	return errors.WithFields(
		errors.Wrap(err, errors.InvalidResponse, "failed to parse JSON"),
		errors.Fields{
			"error_type":   "json_parse_error",
			"data_preview": truncateString(data, 100),
			"data_length":  len(data),
		})
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
