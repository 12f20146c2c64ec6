package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/heardlabs/heard/internal/language"
	"github.com/heardlabs/heard/internal/session"
	"github.com/heardlabs/heard/internal/stream"
)

// persistEvery is how many appended segments trigger a background save.
const persistEvery = 10

// Streamer is the slice of stream.Provider the manager drives.
type Streamer interface {
	Connect(language string, onSegment stream.SegmentFunc, onError stream.ErrorFunc) error
	Send(chunk []byte) error
	Disconnect() error
}

// Store is the slice of the session store the manager needs.
type Store interface {
	Save(ctx context.Context, s *session.Session) error
	Find(ctx context.Context, id string) (*session.Session, error)
}

// managedSession pairs a live session with its stream and the
// bookkeeping for periodic persistence.
type managedSession struct {
	sess    *session.Session
	stream  Streamer
	unsaved int  // segments appended since the last successful save
	saving  bool // a background save is in flight
}

type Options struct {
	Store    Store
	Streams  func() Streamer // hands out a stream per session
	Provider string          // provider name stamped on new sessions
	Language string          // default language when the caller gives none
	Logger   *log.Logger
}

// Manager owns every live session: it routes audio in, collects
// segments out, persists periodically and tears sessions down.
type Manager struct {
	mu       sync.Mutex
	cond     *sync.Cond
	sessions map[string]*managedSession

	store    Store
	streams  func() Streamer
	provider string
	language string
	logger   *log.Logger
}

func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	m := &Manager{
		sessions: make(map[string]*managedSession),
		store:    opts.Store,
		streams:  opts.Streams,
		provider: opts.Provider,
		language: opts.Language,
		logger:   logger.WithPrefix("manager"),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Start creates a session, wires it to a stream and registers it.
// The stream connects lazily, so no network traffic happens here.
func (m *Manager) Start(lang string) (*session.Session, error) {
	if lang == "" {
		lang = m.language
	}
	normalized, ok := language.Normalize(lang)
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", lang)
	}

	id := uuid.NewString()
	sess := session.New(id, normalized, m.provider)
	streamer := m.streams()

	if err := streamer.Connect(normalized, m.segmentSink(id), m.errorSink(id)); err != nil {
		return nil, fmt.Errorf("connect stream: %w", err)
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, session.ErrSessionAlreadyActive
	}
	m.sessions[id] = &managedSession{sess: sess, stream: streamer}
	m.mu.Unlock()

	m.logger.Info("session started", "session", id, "language", normalized, "provider", m.provider)
	return sess.Clone(), nil
}

// SendAudio forwards a chunk of audio to the session's stream.
func (m *Manager) SendAudio(id string, chunk []byte) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return session.ErrSessionNotFound
	}
	if !ms.sess.Active() {
		m.mu.Unlock()
		return session.ErrSessionAlreadyStopped
	}
	streamer := ms.stream
	m.mu.Unlock()

	return streamer.Send(chunk)
}

// Stop marks the session stopped, waits out any in-flight background
// save, persists the final state and removes the session from the
// registry. A failed final save is logged but does not undo the stop.
func (m *Manager) Stop(ctx context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, session.ErrSessionNotFound
	}
	if !ms.sess.Stop() {
		m.mu.Unlock()
		return nil, session.ErrSessionAlreadyStopped
	}
	for ms.saving {
		m.cond.Wait()
	}
	streamer := ms.stream
	final := ms.sess.Clone()
	delete(m.sessions, id)
	m.mu.Unlock()

	if err := streamer.Disconnect(); err != nil {
		m.logger.Warn("stream disconnect failed", "session", id, "error", err)
	}
	if err := m.store.Save(ctx, final); err != nil {
		m.logger.Error("final save failed", "session", id, "error", err)
	}

	m.logger.Info("session stopped", "session", id, "segments", final.SegmentCount())
	return final, nil
}

// StopAll stops every live session. Used on daemon shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if _, err := m.Stop(ctx, id); err != nil {
			m.logger.Warn("stop on shutdown failed", "session", id, "error", err)
		}
	}
}

// GetTranscription returns a window of the session's segments. The
// bounds are clamped: a negative from reads from the start, a from
// past the end yields an empty slice, a non-positive limit means no
// limit. Stopped sessions are read from the store.
func (m *Manager) GetTranscription(ctx context.Context, id string, from, limit int) ([]session.Segment, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	segs := sess.Segments

	if from < 0 {
		from = 0
	}
	if from > len(segs) {
		from = len(segs)
	}
	end := len(segs)
	if limit > 0 && from+limit < end {
		end = from + limit
	}
	out := make([]session.Segment, end-from)
	copy(out, segs[from:end])
	return out, nil
}

// Get returns a snapshot of the session, live or archived.
func (m *Manager) Get(ctx context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	var snap *session.Session
	if ok {
		snap = ms.sess.Clone()
	}
	m.mu.Unlock()
	if ok {
		return snap, nil
	}

	stored, err := m.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, session.ErrSessionNotFound
	}
	return stored, nil
}

// GetActive returns a snapshot of a live session only.
func (m *Manager) GetActive(id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return ms.sess.Clone(), nil
}

// ListActive returns snapshots of all live sessions, oldest first.
// Sessions caught mid-stop are excluded.
func (m *Manager) ListActive() []*session.Session {
	m.mu.Lock()
	out := make([]*session.Session, 0, len(m.sessions))
	for _, ms := range m.sessions {
		if !ms.sess.Active() {
			continue
		}
		out = append(out, ms.sess.Clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// segmentSink builds the callback that feeds a session's segments in.
func (m *Manager) segmentSink(id string) stream.SegmentFunc {
	return func(seg session.Segment) {
		m.mu.Lock()
		ms, ok := m.sessions[id]
		if !ok {
			m.mu.Unlock()
			return
		}
		if !ms.sess.Append(seg) {
			m.mu.Unlock()
			return
		}
		ms.unsaved++
		trigger := ms.unsaved >= persistEvery && !ms.saving
		var snapshot *session.Session
		var count int
		if trigger {
			ms.saving = true
			count = ms.unsaved
			snapshot = ms.sess.Clone()
		}
		m.mu.Unlock()

		if trigger {
			go m.persist(id, snapshot, count)
		}
	}
}

// errorSink builds the callback for stream errors. Errors never kill
// the session: its transcript stays readable and it can still be
// stopped normally.
func (m *Manager) errorSink(id string) stream.ErrorFunc {
	return func(err error) {
		if errors.Is(err, stream.ErrReconnectionFailed) {
			m.logger.Error("stream lost", "session", id, "error", err)
			return
		}
		m.logger.Warn("stream error", "session", id, "error", err)
	}
}

// persist writes a snapshot in the background. On success the unsaved
// counter drops by what the snapshot covered; on failure it is left
// alone so the next segment retries.
func (m *Manager) persist(id string, snapshot *session.Session, count int) {
	err := m.store.Save(context.Background(), snapshot)

	m.mu.Lock()
	if ms, ok := m.sessions[id]; ok {
		ms.saving = false
		if err == nil {
			ms.unsaved -= count
			if ms.unsaved < 0 {
				ms.unsaved = 0
			}
		}
	}
	m.cond.Broadcast()
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("background save failed", "session", id, "error", err)
		return
	}
	m.logger.Debug("session persisted", "session", id, "segments", snapshot.SegmentCount())
}
