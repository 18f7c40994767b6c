package classification

import (
	"encoding/json"
	"fmt"
	"math"
)

var requiredFields = []string{"category", "confidence", "details", "tips", "buds_reward"}

// ExtractJSONObject returns the first balanced {...} object found in text.
// Braces inside JSON string literals are ignored.
func ExtractJSONObject(text string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if start < 0 {
			if ch == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	if start < 0 {
		return "", fmt.Errorf("%w: no JSON object in reply", ErrMalformedResponse)
	}
	return "", fmt.Errorf("%w: unterminated JSON object in reply", ErrMalformedResponse)
}

// Interpret parses a free-form model reply into a Result. It never fills in
// missing data; any gap or out-of-range value is ErrMalformedResponse.
func Interpret(reply string) (*Result, error) {
	object, err := ExtractJSONObject(reply)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(object), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for _, name := range requiredFields {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			return nil, fmt.Errorf("%w: missing field %q", ErrMalformedResponse, name)
		}
	}

	var (
		rawCategory string
		confidence  float64
		reward      float64
		result      Result
	)
	if err := decodeField(fields, "category", &rawCategory); err != nil {
		return nil, err
	}
	if err := decodeField(fields, "confidence", &confidence); err != nil {
		return nil, err
	}
	if err := decodeField(fields, "details", &result.Details); err != nil {
		return nil, err
	}
	if err := decodeField(fields, "tips", &result.Tips); err != nil {
		return nil, err
	}
	if err := decodeField(fields, "buds_reward", &reward); err != nil {
		return nil, err
	}
	if raw, ok := fields["environmental_impact"]; ok && string(raw) != "null" {
		if err := decodeField(fields, "environmental_impact", &result.EnvironmentalImpact); err != nil {
			return nil, err
		}
	}

	category, ok := ParseCategory(rawCategory)
	if !ok || !category.Disposable() {
		return nil, fmt.Errorf("%w: unsupported category %q", ErrMalformedResponse, rawCategory)
	}
	result.Category = category

	if confidence < 0 || confidence > 100 {
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrMalformedResponse, confidence)
	}
	result.Confidence = int(math.Trunc(confidence))

	if reward < 0 {
		return nil, fmt.Errorf("%w: negative buds_reward %v", ErrMalformedResponse, reward)
	}
	result.BudsReward = int(math.Trunc(reward))
	if band := category.RewardBand(); result.BudsReward < band.Min || result.BudsReward > band.Max {
		return nil, fmt.Errorf("%w: buds_reward %d outside %s range %d-%d",
			ErrMalformedResponse, result.BudsReward, category, band.Min, band.Max)
	}

	if len(result.Tips) == 0 {
		return nil, fmt.Errorf("%w: tips must not be empty", ErrMalformedResponse)
	}

	return &result, nil
}

func decodeField(fields map[string]json.RawMessage, name string, dst interface{}) error {
	if err := json.Unmarshal(fields[name], dst); err != nil {
		return fmt.Errorf("%w: field %q: %v", ErrMalformedResponse, name, err)
	}
	return nil
}
