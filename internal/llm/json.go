package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// UnmarshalResponse parses JSON from a model response into v, stripping a
// surrounding markdown code fence when present.
func UnmarshalResponse(text string, v interface{}) error {
	cleaned := strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(cleaned); m != nil {
		cleaned = strings.TrimSpace(m[1])
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("parse model JSON: %w", err)
	}
	return nil
}
