package llm

import (
	"encoding/json"
	"regexp"
)

// sensitiveKeys are stripped from any payload before transmission
var sensitiveKeys = map[string]bool{
	"server_id":   true,
	"instance_id": true,
	"internal_ip": true,
	"hostname":    true,
}

var (
	homePathPattern = regexp.MustCompile(`/home/\S+`)
	ipv4Pattern     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
)

// SanitizeText redacts filesystem paths and IP addresses from outbound text
func SanitizeText(text string) string {
	text = homePathPattern.ReplaceAllString(text, "[PATH]")
	text = ipv4Pattern.ReplaceAllString(text, "[IP]")
	return text
}

// SanitizePayload deep-copies a payload and strips server-local metadata
// keys at every nesting level. The input is not modified.
func SanitizePayload(payload map[string]interface{}) map[string]interface{} {
	raw, err := json.Marshal(payload)
	if err != nil {
		return map[string]interface{}{}
	}
	var copied map[string]interface{}
	if err := json.Unmarshal(raw, &copied); err != nil {
		return map[string]interface{}{}
	}
	stripSensitive(copied)
	return copied
}

func stripSensitive(value interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, nested := range v {
			if sensitiveKeys[key] {
				delete(v, key)
				continue
			}
			stripSensitive(nested)
		}
	case []interface{}:
		for _, item := range v {
			stripSensitive(item)
		}
	}
}
