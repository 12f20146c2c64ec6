package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/heardlabs/heard/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func stoppedSession(t *testing.T) *session.Session {
	t.Helper()
	started := time.Date(2025, 6, 1, 10, 0, 0, 123456789, time.UTC)
	stopped := started.Add(90*time.Second + 500*time.Millisecond)
	segments := []session.Segment{
		{
			ID:   "deepgram-1",
			Text: "first line",
			Words: []session.Word{
				{Word: "first", PunctuatedWord: "First", Start: 0.0, End: 0.7, Confidence: floatPtr(0.98)},
				{Word: "line", Start: 0.7, End: 1.5, Confidence: floatPtr(0.91), Speaker: intPtr(0)},
			},
			Start:      0.0,
			End:        1.5,
			Confidence: floatPtr(0.95),
			Speaker:    intPtr(0),
			Final:      true,
			ReceivedAt: started.Add(2 * time.Second),
		},
		{
			ID:         "deepgram-2",
			Text:       "interim",
			Start:      1.5,
			End:        2.0,
			Final:      false,
			ReceivedAt: started.Add(3 * time.Second),
		},
	}
	return session.Restore("sess-1", "en-US", "deepgram", session.StatusStopped, segments, started, &stopped)
}

func TestSaveFindRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	orig := stoppedSession(t)

	if err := s.Save(ctx, orig); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Find(ctx, orig.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil {
		t.Fatal("find returned nil for a saved session")
	}

	if got.ID != orig.ID || got.Language != orig.Language || got.Provider != orig.Provider || got.Status != orig.Status {
		t.Errorf("header fields differ: got %+v", got)
	}
	if !got.StartedAt.Equal(orig.StartedAt) {
		t.Errorf("StartedAt: got %v, want %v", got.StartedAt, orig.StartedAt)
	}
	if got.StoppedAt == nil {
		t.Fatal("StoppedAt missing after round trip")
	}
	if !got.StoppedAt.Equal(*orig.StoppedAt) {
		t.Errorf("StoppedAt: got %v, want %v", *got.StoppedAt, *orig.StoppedAt)
	}
	// The persisted timestamp must come back verbatim, not re-derived.
	if got.StoppedAt.Format(time.RFC3339Nano) != orig.StoppedAt.Format(time.RFC3339Nano) {
		t.Errorf("StoppedAt text differs: got %s, want %s",
			got.StoppedAt.Format(time.RFC3339Nano), orig.StoppedAt.Format(time.RFC3339Nano))
	}

	if len(got.Segments) != len(orig.Segments) {
		t.Fatalf("segment count: got %d, want %d", len(got.Segments), len(orig.Segments))
	}
	for i, seg := range got.Segments {
		want := orig.Segments[i]
		if seg.ID != want.ID || seg.Text != want.Text || seg.Start != want.Start || seg.End != want.End || seg.Final != want.Final {
			t.Errorf("segment %d differs: got %+v, want %+v", i, seg, want)
		}
		if !seg.ReceivedAt.Equal(want.ReceivedAt) {
			t.Errorf("segment %d ReceivedAt: got %v, want %v", i, seg.ReceivedAt, want.ReceivedAt)
		}
		if (seg.Confidence == nil) != (want.Confidence == nil) {
			t.Errorf("segment %d confidence presence differs", i)
		} else if seg.Confidence != nil && *seg.Confidence != *want.Confidence {
			t.Errorf("segment %d confidence: got %v, want %v", i, *seg.Confidence, *want.Confidence)
		}
		if len(seg.Words) != len(want.Words) {
			t.Errorf("segment %d words: got %d, want %d", i, len(seg.Words), len(want.Words))
			continue
		}
		for j, w := range seg.Words {
			ww := want.Words[j]
			if w.Word != ww.Word || w.PunctuatedWord != ww.PunctuatedWord || w.Start != ww.Start || w.End != ww.End {
				t.Errorf("segment %d word %d differs: got %+v, want %+v", i, j, w, ww)
			}
			if (w.Speaker == nil) != (ww.Speaker == nil) {
				t.Errorf("segment %d word %d speaker presence differs", i, j)
			}
		}
	}

	if got.Append(session.Segment{ID: "deepgram-3", Text: "late"}) {
		t.Error("reconstructed stopped session must reject appends")
	}
}

func TestFindMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Find(context.Background(), "nope")
	if err != nil {
		t.Fatalf("find on missing id should not error, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := session.New("sess-2", "en-US", "deepgram")
	sess.Append(session.Segment{ID: "deepgram-1", Text: "one", Final: true, ReceivedAt: time.Now().UTC()})
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("first save: %v", err)
	}

	sess.Append(session.Segment{ID: "deepgram-2", Text: "two", Final: true, ReceivedAt: time.Now().UTC()})
	sess.Stop()
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.Find(ctx, "sess-2")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != session.StatusStopped {
		t.Errorf("status not overwritten: %s", got.Status)
	}
	if len(got.Segments) != 2 {
		t.Errorf("expected 2 segments after overwrite, got %d", len(got.Segments))
	}
}

func TestListFiltersAndLimits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	for i, status := range []string{session.StatusActive, session.StatusStopped, session.StatusStopped} {
		started := base.Add(time.Duration(i) * time.Hour)
		var stopped *time.Time
		if status == session.StatusStopped {
			st := started.Add(time.Minute)
			stopped = &st
		}
		sess := session.Restore(
			string(rune('a'+i)), "en-US", "deepgram", status, nil, started, stopped)
		if err := s.Save(ctx, sess); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	all, err := s.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(all))
	}
	if !all[0].StartedAt.After(all[1].StartedAt) {
		t.Error("list should be ordered newest first")
	}

	stopped, err := s.List(ctx, session.StatusStopped, 0)
	if err != nil {
		t.Fatalf("list stopped: %v", err)
	}
	if len(stopped) != 2 {
		t.Errorf("expected 2 stopped sessions, got %d", len(stopped))
	}

	limited, err := s.List(ctx, "", 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 session with limit 1, got %d", len(limited))
	}
}

func TestDeleteMissing(t *testing.T) {
	s := openTestStore(t)

	err := s.Delete(context.Background(), "nope")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := stoppedSession(t)

	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := s.Find(ctx, sess.ID)
	if err != nil {
		t.Fatalf("find after delete: %v", err)
	}
	if got != nil {
		t.Errorf("record still present after delete: %+v", got)
	}
}

func TestRepositoryErrorUnwraps(t *testing.T) {
	inner := errors.New("disk full")
	err := repoErr("save", inner)

	if !IsRepositoryError(err) {
		t.Error("IsRepositoryError should match")
	}
	if !errors.Is(err, inner) {
		t.Error("RepositoryError should unwrap to its cause")
	}
	if IsRepositoryError(errors.New("plain")) {
		t.Error("IsRepositoryError matched an unrelated error")
	}
}
