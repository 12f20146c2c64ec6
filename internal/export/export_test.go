package export

import (
	"strings"
	"testing"
	"time"

	"github.com/heardlabs/heard/internal/session"
)

func sessionWith(t *testing.T, segs ...session.Segment) *session.Session {
	t.Helper()
	s := session.New("abc", "en-US", "deepgram")
	for _, seg := range segs {
		if !s.Append(seg) {
			t.Fatalf("append of %q rejected", seg.ID)
		}
	}
	return s
}

func seg(id, text string, start, end float64, final bool) session.Segment {
	return session.Segment{
		ID:         id,
		Text:       text,
		Start:      start,
		End:        end,
		Final:      final,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestTextExcludesInterim(t *testing.T) {
	s := sessionWith(t,
		seg("deepgram-1", "first line", 0, 1.5, true),
		seg("deepgram-2", "interim", 1.5, 2.0, false),
		seg("deepgram-3", "second line", 1.5, 3.0, true),
	)

	got := Text(s)
	want := "first line\nsecond line"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestSRTBoundaries(t *testing.T) {
	s := sessionWith(t,
		seg("deepgram-1", "first line", 0.0, 1.5, true),
		seg("deepgram-2", "second line", 1.5, 3.0, true),
	)

	got := SRT(s)
	if !strings.Contains(got, "00:00:00,000 --> 00:00:01,500") {
		t.Errorf("first cue boundary missing, got:\n%s", got)
	}
	if !strings.Contains(got, "00:00:01,500 --> 00:00:03,000") {
		t.Errorf("second cue boundary missing, got:\n%s", got)
	}

	want := "1\n00:00:00,000 --> 00:00:01,500\nfirst line\n\n2\n00:00:01,500 --> 00:00:03,000\nsecond line\n"
	if got != want {
		t.Errorf("SRT() = %q, want %q", got, want)
	}
}

func TestSRTSkipsInterim(t *testing.T) {
	s := sessionWith(t,
		seg("deepgram-1", "kept", 0, 1, true),
		seg("deepgram-2", "dropped", 1, 2, false),
	)

	got := SRT(s)
	if strings.Contains(got, "dropped") {
		t.Errorf("interim segment leaked into SRT:\n%s", got)
	}
	if strings.Contains(got, "2\n") {
		t.Errorf("cue numbering should skip interim segments:\n%s", got)
	}
}

func TestSRTTimestampFormat(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{3.0, "00:00:03,000"},
		{61.25, "00:01:01,250"},
		{3661.001, "01:01:01,001"},
		{-2, "00:00:00,000"},
	}

	for _, tt := range tests {
		if got := srtTimestamp(tt.seconds); got != tt.want {
			t.Errorf("srtTimestamp(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	s := sessionWith(t, seg("deepgram-1", "hello", 0, 1, true))

	got, err := JSON(s)
	if err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	for _, want := range []string{`"id": "abc"`, `"language": "en-US"`, `"text": "hello"`} {
		if !strings.Contains(got, want) {
			t.Errorf("JSON output missing %s:\n%s", want, got)
		}
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	s := sessionWith(t)
	if _, err := Render(s, "vtt"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRenderDefaultsToText(t *testing.T) {
	s := sessionWith(t, seg("deepgram-1", "hello", 0, 1, true))
	got, err := Render(s, "")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if got != "hello" {
		t.Errorf("Render(\"\") = %q, want %q", got, "hello")
	}
}
