package lookup

import (
	"encoding/json"
	"fmt"
)

// SummaryTags derives the display tags for a detail payload. The malicious
// activity and suspicious tags are always present; reputation and last seen
// only when the payload carries a truthy value for them.
func SummaryTags(details map[string]any) []string {
	tags := make([]string, 0, 4)

	if v := details["reputation"]; truthy(v) {
		tags = append(tags, "Reputation: "+display(v))
	}

	if truthy(maliciousActivity(details)) {
		tags = append(tags, "Malicious Activity: true")
	} else {
		tags = append(tags, "Malicious Activity: false")
	}

	if v := details["suspicious"]; truthy(v) {
		tags = append(tags, "Suspicious: "+display(v))
	} else {
		tags = append(tags, "Suspicious: false")
	}

	if v := details["last_seen"]; truthy(v) {
		tags = append(tags, "Last Seen: "+display(v))
	}

	return tags
}

// maliciousActivity reads the flag from the top level, accepting the
// historical misspelling, then from the nested details object.
func maliciousActivity(details map[string]any) any {
	for _, key := range []string{"malicious_activity", "malicous_activity"} {
		if v, ok := details[key]; ok {
			return v
		}
	}
	if nested, ok := details["details"].(map[string]any); ok {
		return nested["malicious_activity"]
	}
	return nil
}

func truthy(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	case json.Number:
		f, err := value.Float64()
		return err != nil || f != 0
	case float64:
		return value != 0
	case int:
		return value != 0
	case int64:
		return value != 0
	default:
		return true
	}
}

func display(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
