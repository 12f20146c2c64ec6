// Package export renders finished transcripts into shareable formats.
package export

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/heardlabs/heard/internal/session"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatSRT  = "srt"
	FormatJSON = "json"
)

// Formats lists the valid format names.
func Formats() []string {
	return []string{FormatText, FormatSRT, FormatJSON}
}

// Render dispatches to the named format. An empty format means text.
func Render(s *session.Session, format string) (string, error) {
	switch format {
	case FormatText, "":
		return Text(s), nil
	case FormatSRT:
		return SRT(s), nil
	case FormatJSON:
		return JSON(s)
	default:
		return "", fmt.Errorf("unknown export format %q (valid: %s)", format, strings.Join(Formats(), ", "))
	}
}

// Text returns the final segments joined one per line. Interim segments are
// excluded.
func Text(s *session.Session) string {
	return s.Transcript()
}

// SRT renders the final segments as numbered SubRip cues.
func SRT(s *session.Session) string {
	var b strings.Builder
	n := 0
	for _, seg := range s.Segments {
		if !seg.Final {
			continue
		}
		n++
		if n > 1 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", n, srtTimestamp(seg.Start), srtTimestamp(seg.End), seg.Text)
	}
	return b.String()
}

// JSON returns the full session record, indented.
func JSON(s *session.Session) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return string(data), nil
}

// srtTimestamp formats a second offset as HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
