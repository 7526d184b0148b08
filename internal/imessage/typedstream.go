package imessage

import (
	"bytes"
	"regexp"
	"strings"
)

// attributedBody blobs are typedstream-serialized NSAttributedStrings. The
// message text sits after the marker bytes 0x01 0x2B, preceded by a single
// length byte. The format is undocumented and has shifted between macOS
// releases, so a heuristic fallback scans for the longest printable run when
// the marker path fails.
var bodyMarker = []byte{0x01, 0x2B}

var printableRun = regexp.MustCompile(`[\x20-\x7e]{3,}`)

// cocoa metadata strings that the heuristic scan must never mistake for
// message text.
func isCocoaMetadata(s string) bool {
	return strings.HasPrefix(s, "NS") ||
		strings.HasPrefix(s, "__kIM") ||
		strings.HasPrefix(s, "streamtyped") ||
		s == "YES" || s == "NO" || s == "UTF" || s == "nil"
}

// DecodeAttributedBody extracts the plain text from an attributedBody blob.
// It tries the exact marker encoding first and falls back to a permissive
// printable-run scan. Returns ok=false when neither path yields text; callers
// skip such records without failing ingestion.
func DecodeAttributedBody(blob []byte) (text string, ok bool) {
	if text, ok := decodeExact(blob); ok {
		return text, true
	}
	return decodeHeuristic(blob)
}

func decodeExact(blob []byte) (string, bool) {
	idx := bytes.Index(blob, bodyMarker)
	if idx == -1 || idx+2 >= len(blob) {
		return "", false
	}

	length := int(blob[idx+2])
	start := idx + 3
	if length == 0 || start+length > len(blob) {
		return "", false
	}

	text := strings.TrimSpace(string(blob[start : start+length]))
	if text == "" {
		return "", false
	}
	return text, true
}

func decodeHeuristic(blob []byte) (string, bool) {
	var best string
	for _, m := range printableRun.FindAllString(string(blob), -1) {
		m = strings.TrimSpace(m)
		if len(m) < 2 || isCocoaMetadata(m) {
			continue
		}
		if len(m) > len(best) {
			best = m
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}
