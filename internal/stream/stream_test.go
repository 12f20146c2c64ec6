package stream

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/heardlabs/heard/internal/provider"
	"github.com/heardlabs/heard/internal/session"
)

// mockStreamServer runs a WebSocket server that checks the Token auth
// header, counts dials, and hands each accepted connection to handler.
type mockStreamServer struct {
	server  *httptest.Server
	dials   atomic.Int32
	refuse  atomic.Bool // when set, dials fail before the upgrade
	mu      sync.Mutex
	queries []string
}

func newMockStreamServer(t *testing.T, handler func(*websocket.Conn)) *mockStreamServer {
	t.Helper()
	m := &mockStreamServer{}
	upgrader := websocket.Upgrader{}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Token ") {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		m.dials.Add(1)
		m.mu.Lock()
		m.queries = append(m.queries, r.URL.RawQuery)
		m.mu.Unlock()
		if m.refuse.Load() {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockStreamServer) endpoint() provider.EndpointConfig {
	return provider.EndpointConfig{
		BaseURL: "ws" + strings.TrimPrefix(m.server.URL, "http"),
		Path:    "/v1/listen",
	}
}

func (m *mockStreamServer) lastQuery() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queries) == 0 {
		return ""
	}
	return m.queries[len(m.queries)-1]
}

func testProvider(m *mockStreamServer) *Provider {
	return New(Config{
		Name:     "deepgram",
		APIKey:   "test-api-key",
		Model:    "nova-2",
		Endpoint: m.endpoint(),
	}, log.New(io.Discard))
}

func resultsJSON(t *testing.T, transcript string, start, duration float64, final bool) []byte {
	t.Helper()
	data, err := json.Marshal(deepgramResponse{
		Type:     "Results",
		Start:    start,
		Duration: duration,
		IsFinal:  final,
		Channel: &deepgramChannel{
			Alternatives: []deepgramAlternative{{Transcript: transcript, Confidence: 0.95}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// readUntilError keeps the server side of a connection alive.
func readUntilError(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func waitSegment(t *testing.T, ch <-chan session.Segment) session.Segment {
	t.Helper()
	select {
	case seg := <-ch:
		return seg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for segment")
		return session.Segment{}
	}
}

func TestConnectIsLazy(t *testing.T) {
	m := newMockStreamServer(t, readUntilError)
	p := testProvider(m)

	err := p.Connect("en-US", func(session.Segment) {}, func(error) {})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := m.dials.Load(); got != 0 {
		t.Fatalf("Connect() dialed %d times, want 0 (connection must be lazy)", got)
	}
	if p.Connected() {
		t.Error("provider should not be connected before the first send")
	}

	if err := p.Send([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := m.dials.Load(); got != 1 {
		t.Errorf("first Send() dialed %d times, want 1", got)
	}
	if !p.Connected() {
		t.Error("provider should be connected after the first send")
	}

	p.Disconnect()
}

func TestConnectRequiresCredentials(t *testing.T) {
	m := newMockStreamServer(t, readUntilError)
	cfg := Config{Name: "deepgram", Model: "nova-2", Endpoint: m.endpoint()}
	p := New(cfg, log.New(io.Discard))

	err := p.Connect("en-US", func(session.Segment) {}, func(error) {})
	if !errors.Is(err, ErrCredentialsMissing) {
		t.Errorf("expected ErrCredentialsMissing, got %v", err)
	}
	if got := m.dials.Load(); got != 0 {
		t.Errorf("credential check must happen before any network I/O, got %d dials", got)
	}
}

func TestSendFailsWhenDialImpossible(t *testing.T) {
	p := New(Config{
		Name:     "deepgram",
		APIKey:   "test-api-key",
		Model:    "nova-2",
		Endpoint: provider.EndpointConfig{BaseURL: "ws://127.0.0.1:1", Path: "/v1/listen"},
	}, log.New(io.Discard))

	if err := p.Connect("en-US", func(session.Segment) {}, func(error) {}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	err := p.Send([]byte{0x01})
	if !errors.Is(err, ErrProviderNotConnected) {
		t.Errorf("expected ErrProviderNotConnected, got %v", err)
	}
}

func TestDialQueryParameters(t *testing.T) {
	m := newMockStreamServer(t, readUntilError)
	p := testProvider(m)

	if err := p.Connect("en-US", func(session.Segment) {}, func(error) {}); err != nil {
		t.Fatal(err)
	}
	if err := p.Send([]byte{0x01}); err != nil {
		t.Fatal(err)
	}
	defer p.Disconnect()

	query := m.lastQuery()
	for _, want := range []string{
		"model=nova-2",
		"encoding=linear16",
		"sample_rate=16000",
		"channels=1",
		"interim_results=true",
		"smart_format=true",
		"punctuate=true",
		"language=en-US",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("dial query %q missing %q", query, want)
		}
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		language string
		want     []string
		absent   []string
	}{
		{
			name:     "with language",
			language: "it",
			want:     []string{"model=nova-2", "language=it", "encoding=linear16", "sample_rate=16000", "channels=1"},
		},
		{
			name:     "auto-detect omits language",
			language: "",
			want:     []string{"model=nova-2", "punctuate=true"},
			absent:   []string{"language="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Config{
				Name:     "deepgram",
				APIKey:   "test-key",
				Model:    "nova-2",
				Endpoint: provider.EndpointConfig{BaseURL: "wss://api.deepgram.com", Path: "/v1/listen"},
			}, log.New(io.Discard))
			p.language = tt.language

			url, err := p.buildURL()
			if err != nil {
				t.Fatalf("buildURL() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(url, want) {
					t.Errorf("buildURL() = %q, want to contain %q", url, want)
				}
			}
			for _, absent := range tt.absent {
				if strings.Contains(url, absent) {
					t.Errorf("buildURL() = %q, should not contain %q", url, absent)
				}
			}
		})
	}
}

func TestReceivesSegments(t *testing.T) {
	m := newMockStreamServer(t, func(conn *websocket.Conn) {
		// Audio first, then stream two results back.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, resultsJSON(t, "first line", 0.0, 1.5, true))
		conn.WriteMessage(websocket.TextMessage, resultsJSON(t, "second line", 1.5, 1.5, true))
		readUntilError(conn)
	})
	p := testProvider(m)

	segCh := make(chan session.Segment, 8)
	if err := p.Connect("en-US", func(s session.Segment) { segCh <- s }, func(error) {}); err != nil {
		t.Fatal(err)
	}
	if err := p.Send(make([]byte, 320)); err != nil {
		t.Fatal(err)
	}
	defer p.Disconnect()

	first := waitSegment(t, segCh)
	if first.ID != "deepgram-1" {
		t.Errorf("first segment id = %q, want %q", first.ID, "deepgram-1")
	}
	if first.Text != "first line" {
		t.Errorf("first segment text = %q", first.Text)
	}
	if !first.Final {
		t.Error("first segment should be final")
	}
	if first.Start != 0.0 || first.End != 1.5 {
		t.Errorf("first segment timing = [%v, %v], want [0, 1.5]", first.Start, first.End)
	}
	if first.Confidence == nil || *first.Confidence != 0.95 {
		t.Errorf("first segment confidence = %v, want 0.95", first.Confidence)
	}
	if first.ReceivedAt.IsZero() {
		t.Error("segment capture timestamp missing")
	}

	second := waitSegment(t, segCh)
	if second.ID != "deepgram-2" {
		t.Errorf("second segment id = %q, want %q (counter must increment)", second.ID, "deepgram-2")
	}
	if second.Start != 1.5 || second.End != 3.0 {
		t.Errorf("second segment timing = [%v, %v], want [1.5, 3]", second.Start, second.End)
	}
}

func TestSegmentWordsAndSpeaker(t *testing.T) {
	speaker := 1
	payload, err := json.Marshal(deepgramResponse{
		Type:     "Results",
		Start:    0,
		Duration: 1,
		IsFinal:  true,
		Channel: &deepgramChannel{Alternatives: []deepgramAlternative{{
			Transcript: "hello world",
			Confidence: 0.9,
			Words: []deepgramWord{
				{Word: "hello", PunctuatedWord: "Hello", Start: 0, End: 0.4, Confidence: 0.92, Speaker: &speaker},
				{Word: "world", PunctuatedWord: "world", Start: 0.4, End: 1, Confidence: 0.88, Speaker: &speaker},
			},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	m := newMockStreamServer(t, func(conn *websocket.Conn) {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, payload)
		readUntilError(conn)
	})
	p := testProvider(m)

	segCh := make(chan session.Segment, 1)
	if err := p.Connect("en-US", func(s session.Segment) { segCh <- s }, func(error) {}); err != nil {
		t.Fatal(err)
	}
	if err := p.Send([]byte{0x01}); err != nil {
		t.Fatal(err)
	}
	defer p.Disconnect()

	seg := waitSegment(t, segCh)
	if len(seg.Words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(seg.Words))
	}
	if seg.Words[0].PunctuatedWord != "Hello" {
		t.Errorf("punctuated word = %q", seg.Words[0].PunctuatedWord)
	}
	if seg.Words[0].Speaker == nil || *seg.Words[0].Speaker != 1 {
		t.Errorf("word speaker = %v, want 1", seg.Words[0].Speaker)
	}
	if seg.Speaker == nil || *seg.Speaker != 1 {
		t.Errorf("segment speaker = %v, want 1", seg.Speaker)
	}
}

func TestIgnoresNonResultEvents(t *testing.T) {
	m := newMockStreamServer(t, func(conn *websocket.Conn) {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Metadata","request_id":"abc"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"UtteranceEnd"}`))
		// Results with no alternatives, then a blank transcript.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","channel":{"alternatives":[]}}`))
		conn.WriteMessage(websocket.TextMessage, resultsJSON(t, "   ", 0, 1, true))
		// A real one so the test can synchronize.
		conn.WriteMessage(websocket.TextMessage, resultsJSON(t, "real", 0, 1, true))
		readUntilError(conn)
	})
	p := testProvider(m)

	segCh := make(chan session.Segment, 8)
	errCh := make(chan error, 8)
	if err := p.Connect("en-US", func(s session.Segment) { segCh <- s }, func(err error) { errCh <- err }); err != nil {
		t.Fatal(err)
	}
	if err := p.Send([]byte{0x01}); err != nil {
		t.Fatal(err)
	}
	defer p.Disconnect()

	seg := waitSegment(t, segCh)
	if seg.Text != "real" {
		t.Errorf("got segment %q, want %q", seg.Text, "real")
	}
	if seg.ID != "deepgram-1" {
		t.Errorf("ignored events must not advance the counter, got id %q", seg.ID)
	}
	select {
	case err := <-errCh:
		t.Errorf("unexpected error callback: %v", err)
	default:
	}
}

func TestMalformedPayloadPolicy(t *testing.T) {
	m := newMockStreamServer(t, func(conn *websocket.Conn) {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		// Two bytes or fewer: ignored even when unparseable.
		conn.WriteMessage(websocket.TextMessage, []byte(`{`))
		conn.WriteMessage(websocket.TextMessage, []byte(`[]`))
		// Longer garbage must reach the error callback.
		conn.WriteMessage(websocket.TextMessage, []byte(`this is not json`))
		conn.WriteMessage(websocket.TextMessage, resultsJSON(t, "sync", 0, 1, true))
		readUntilError(conn)
	})
	p := testProvider(m)

	segCh := make(chan session.Segment, 4)
	errCh := make(chan error, 4)
	if err := p.Connect("en-US", func(s session.Segment) { segCh <- s }, func(err error) { errCh <- err }); err != nil {
		t.Fatal(err)
	}
	if err := p.Send([]byte{0x01}); err != nil {
		t.Fatal(err)
	}
	defer p.Disconnect()

	waitSegment(t, segCh)

	if len(errCh) != 1 {
		t.Fatalf("expected exactly 1 malformed-payload error, got %d", len(errCh))
	}
	err := <-errCh
	if !strings.Contains(err.Error(), "malformed") {
		t.Errorf("error should mention malformed payload, got %v", err)
	}
}

func TestDisconnectSendsCloseStream(t *testing.T) {
	gotClose := make(chan string, 1)
	m := newMockStreamServer(t, func(conn *websocket.Conn) {
		for {
			msgType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.TextMessage {
				gotClose <- string(payload)
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	})
	p := testProvider(m)

	if err := p.Connect("en-US", func(session.Segment) {}, func(error) {}); err != nil {
		t.Fatal(err)
	}
	if err := p.Send([]byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}
	if err := p.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	select {
	case msg := <-gotClose:
		var control deepgramCloseStream
		if err := json.Unmarshal([]byte(msg), &control); err != nil {
			t.Fatalf("control message not JSON: %v", err)
		}
		if control.Type != "CloseStream" {
			t.Errorf("control type = %q, want CloseStream", control.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the stream termination message")
	}

	if p.Connected() {
		t.Error("provider should be disconnected")
	}
}

func TestDisconnectWhenNotConnected(t *testing.T) {
	m := newMockStreamServer(t, readUntilError)
	p := testProvider(m)

	if err := p.Disconnect(); err != nil {
		t.Errorf("Disconnect() on idle provider = %v, want nil", err)
	}
	if got := m.dials.Load(); got != 0 {
		t.Errorf("idle disconnect dialed %d times", got)
	}
}

func TestUnsolicitedCloseTriggersReconnect(t *testing.T) {
	var firstConn atomic.Bool
	firstConn.Store(true)
	m := newMockStreamServer(t, func(conn *websocket.Conn) {
		if firstConn.CompareAndSwap(true, false) {
			// Drop the first connection without warning.
			conn.Close()
			return
		}
		readUntilError(conn)
	})
	p := testProvider(m)

	if err := p.Connect("en-US", func(session.Segment) {}, func(error) {}); err != nil {
		t.Fatal(err)
	}
	// The write may or may not observe the drop; both paths end with the
	// read loop scheduling a reconnect.
	_ = p.Send([]byte{0x01})
	defer p.Disconnect()

	// First backoff delay is one second; allow generous slack.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m.dials.Load() >= 2 && p.Connected() {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if got := m.dials.Load(); got < 2 {
		t.Fatalf("expected a reconnect dial, got %d dials", got)
	}
	if !p.Connected() {
		t.Fatal("provider should be connected again after reconnect")
	}
	if query := m.lastQuery(); !strings.Contains(query, "language=en-US") {
		t.Errorf("reconnect must reuse the last-known language, query = %q", query)
	}
}

func TestReconnectGivesUpAfterBackoff(t *testing.T) {
	if testing.Short() {
		t.Skip("full backoff takes ~7s")
	}

	connCh := make(chan *websocket.Conn, 1)
	m := newMockStreamServer(t, func(conn *websocket.Conn) {
		connCh <- conn
		readUntilError(conn)
	})
	p := testProvider(m)

	errCh := make(chan error, 8)
	if err := p.Connect("en-US", func(session.Segment) {}, func(err error) { errCh <- err }); err != nil {
		t.Fatal(err)
	}
	if err := p.Send([]byte{0x01}); err != nil {
		t.Fatal(err)
	}

	serverConn := <-connCh
	m.refuse.Store(true) // every redial now fails before the upgrade
	start := time.Now()
	serverConn.Close()

	select {
	case err := <-errCh:
		elapsed := time.Since(start)
		if !errors.Is(err, ErrReconnectionFailed) {
			t.Fatalf("expected ErrReconnectionFailed, got %v", err)
		}
		// Three attempts with 1s, 2s and 4s delays in front of them.
		if elapsed < 7*time.Second {
			t.Errorf("terminal error after %v, want >= 7s of backoff", elapsed)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("never received the terminal reconnection error")
	}

	// Initial dial plus exactly three failed attempts.
	if got := m.dials.Load(); got != 4 {
		t.Errorf("dial count = %d, want 4 (1 initial + 3 reconnect attempts)", got)
	}
	if p.Connected() {
		t.Error("provider must stay disconnected after terminal failure")
	}
}

func TestSendAfterWriteFailureReportsConnectionFailed(t *testing.T) {
	m := newMockStreamServer(t, func(conn *websocket.Conn) {
		// Accept one frame, then drop the connection.
		conn.ReadMessage()
		conn.Close()
	})
	p := testProvider(m)

	if err := p.Connect("en-US", func(session.Segment) {}, func(error) {}); err != nil {
		t.Fatal(err)
	}
	if err := p.Send([]byte{0x01}); err != nil {
		t.Fatal(err)
	}

	// The peer closes after the first frame; keep writing until the
	// failure surfaces.
	deadline := time.Now().Add(5 * time.Second)
	var sendErr error
	for time.Now().Before(deadline) {
		if sendErr = p.Send([]byte{0x02}); sendErr != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if sendErr == nil {
		t.Fatal("send never failed after the peer dropped the connection")
	}
	if !errors.Is(sendErr, ErrProviderConnectionFailed) && !errors.Is(sendErr, ErrProviderNotConnected) {
		t.Errorf("unexpected send error: %v", sendErr)
	}
	p.Disconnect()
}
