package exchange

import (
	"encoding/json"
	"strings"
)

// DefaultReply substitutes for an empty extraction result.
const DefaultReply = "could not process the message"

// replyFields is the ordered probe list for pulling reply text out of a
// heterogeneous payload. First present field wins.
var replyFields = []string{"response", "message", "text", "content", "answer"}

// ExtractReply resolves the reply text from an arbitrary JSON payload.
// Agent endpoints answer with whatever shape their builder chose, so the
// probe order is fixed: named fields, a bare JSON string, then a compact
// re-marshal of the whole payload. If the winning string itself looks like
// a JSON object it gets one unwrap attempt with the same probe order,
// keeping the original on parse failure.
func ExtractReply(body []byte) string {
	text := extractOnce(body)

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		if inner := extractFromObject([]byte(trimmed)); inner != "" {
			text = inner
		}
	}

	if strings.TrimSpace(text) == "" {
		return DefaultReply
	}
	return text
}

func extractOnce(body []byte) string {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		// Not JSON at all: treat the raw bytes as the reply.
		return strings.TrimSpace(string(body))
	}

	switch v := payload.(type) {
	case string:
		return v
	case map[string]any:
		if s := probeFields(v); s != "" {
			return s
		}
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(out)
}

func extractFromObject(data []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return ""
	}
	if s := probeFields(obj); s != "" {
		return s
	}
	// Single-entry objects carry their only string value as the reply;
	// wrappers like {"output":"42"} unwrap to "42".
	if len(obj) == 1 {
		for _, v := range obj {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func probeFields(obj map[string]any) string {
	for _, field := range replyFields {
		v, ok := obj[field]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			if s != "" {
				return s
			}
			continue
		}
		out, err := json.Marshal(v)
		if err != nil {
			continue
		}
		return string(out)
	}
	return ""
}
