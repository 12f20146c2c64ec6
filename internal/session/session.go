package session

import (
	"strings"
	"time"
)

// Session status values.
const (
	StatusActive  = "active"
	StatusStopped = "stopped"
)

// Session aggregates the transcript of one recording run. Segments are
// append-only and ordered by arrival; the status moves from active to
// stopped exactly once.
//
// A Session is not safe for concurrent use. Whoever holds it (the session
// manager while active, the store during reconstruction) serializes access.
type Session struct {
	ID        string     `json:"id"`
	Language  string     `json:"language"`
	Provider  string     `json:"provider"`
	Status    string     `json:"status"`
	Segments  []Segment  `json:"segments"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

// New creates an active session starting now.
func New(id, language, provider string) *Session {
	return &Session{
		ID:        id,
		Language:  language,
		Provider:  provider,
		Status:    StatusActive,
		StartedAt: time.Now().UTC(),
	}
}

// Restore rebuilds a session from persisted state, setting every field
// verbatim. It performs no derived computation: a stopped session keeps the
// exact stop timestamp it was stored with rather than getting a fresh one
// from Stop. Only the store should call this.
func Restore(id, language, provider, status string, segments []Segment, startedAt time.Time, stoppedAt *time.Time) *Session {
	return &Session{
		ID:        id,
		Language:  language,
		Provider:  provider,
		Status:    status,
		Segments:  segments,
		StartedAt: startedAt,
		StoppedAt: stoppedAt,
	}
}

// Append adds seg to the transcript and reports whether it was accepted.
// Once the session is stopped appends are rejected and the transcript is
// left unchanged.
func (s *Session) Append(seg Segment) bool {
	if s.Status != StatusActive {
		return false
	}
	s.Segments = append(s.Segments, seg)
	return true
}

// Stop moves the session to stopped and records the stop time. Only the
// first call has any effect; later calls return false and the original
// timestamp survives.
func (s *Session) Stop() bool {
	if s.Status == StatusStopped {
		return false
	}
	s.Status = StatusStopped
	now := time.Now().UTC()
	s.StoppedAt = &now
	return true
}

// Active reports whether the session still accepts segments.
func (s *Session) Active() bool {
	return s.Status == StatusActive
}

// SegmentCount returns the number of accumulated segments.
func (s *Session) SegmentCount() int {
	return len(s.Segments)
}

// Duration is the elapsed time between start and stop. ok is false while
// the session is still active.
func (s *Session) Duration() (time.Duration, bool) {
	if s.StoppedAt == nil {
		return 0, false
	}
	return s.StoppedAt.Sub(s.StartedAt), true
}

// Clone returns a snapshot that is safe to hand to another goroutine. The
// segment slice and stop timestamp are copied; the segment values themselves
// are immutable and shared.
func (s *Session) Clone() *Session {
	out := *s
	out.Segments = append([]Segment(nil), s.Segments...)
	if s.StoppedAt != nil {
		t := *s.StoppedAt
		out.StoppedAt = &t
	}
	return &out
}

// Transcript joins the text of every final segment, one per line. Interim
// segments are excluded.
func (s *Session) Transcript() string {
	parts := make([]string, 0, len(s.Segments))
	for _, seg := range s.Segments {
		if seg.Final {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, "\n")
}
