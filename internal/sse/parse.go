package sse

import "encoding/json"

func parseJSONObject(payload string) (map[string]interface{}, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// extractErrorMessage implements the ".error.message (or the whole value
// if string)" rule; it returns "" for a nil/empty error object, which the
// caller treats as "no error present".
func extractErrorMessage(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if len(t) == 0 {
			return ""
		}
		if msg, ok := t["message"].(string); ok {
			return msg
		}
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

func extractContent(obj map[string]interface{}) string {
	choicesVal, ok := obj["choices"]
	if !ok {
		return ""
	}
	choices, ok := choicesVal.([]interface{})
	if !ok || len(choices) == 0 {
		return ""
	}
	first, ok := choices[0].(map[string]interface{})
	if !ok {
		return ""
	}
	deltaVal, ok := first["delta"]
	if !ok {
		return ""
	}
	delta, ok := deltaVal.(map[string]interface{})
	if !ok {
		return ""
	}
	content, ok := delta["content"].(string)
	if !ok {
		return ""
	}
	return content
}
