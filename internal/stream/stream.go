// Package stream drives the live WebSocket connection to the speech
// provider: lazy dial, binary audio out, transcript events in, reconnection
// with backoff when the peer drops us.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/heardlabs/heard/internal/provider"
	"github.com/heardlabs/heard/internal/session"
)

// SegmentFunc receives each transcript segment parsed off the wire, in
// arrival order.
type SegmentFunc func(session.Segment)

// ErrorFunc receives out-of-band stream errors: malformed payloads and
// terminal reconnection failures.
type ErrorFunc func(error)

// Config holds the static connection parameters.
type Config struct {
	Name     string // provider name, prefixes segment ids
	APIKey   string
	Model    string
	Endpoint provider.EndpointConfig
}

// Fixed audio encoding the provider is armed with.
const (
	encoding   = "linear16" // 16-bit linear PCM
	sampleRate = 16000      // 16kHz
	channels   = 1          // mono
)

// Reconnection policy for unsolicited connection drops.
const maxRetries = 3

var retryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// closeGrace bounds how long Disconnect waits for the peer to acknowledge
// the stream termination.
const closeGrace = 5 * time.Second

// Provider owns one streaming connection. Connect registers callbacks
// without touching the network; the first Send dials. All mutable state is
// guarded by mu, and the read loop re-enters mu before mutating anything,
// so inbound network events never race calls arriving from other
// goroutines.
type Provider struct {
	cfg    Config
	logger *log.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closing   bool
	language  string
	onSegment SegmentFunc
	onError   ErrorFunc
	counter   int
	regGen    int // bumped by Connect/Disconnect; stale reconnect loops abort
	readDone  chan struct{}
	wg        sync.WaitGroup
}

// New builds a disconnected provider around cfg.
func New(cfg Config, logger *log.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = provider.ProviderDeepgram
	}
	return &Provider{cfg: cfg, logger: logger}
}

// Connect validates credentials and registers the language and callbacks
// for the next connection. The socket is not opened here; the first Send
// dials, so a session started without prompt audio holds no idle
// connection.
func (p *Provider) Connect(language string, onSegment SegmentFunc, onError ErrorFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.APIKey == "" {
		return fmt.Errorf("%w: no API key for %s", ErrCredentialsMissing, p.cfg.Name)
	}

	p.language = language
	p.onSegment = onSegment
	p.onError = onError
	p.regGen++
	if !p.connected {
		p.counter = 0
	}
	p.logger.Debug("provider armed", "language", language, "model", p.cfg.Model)
	return nil
}

// Send forwards one chunk of raw PCM audio as a binary frame, dialing first
// if no connection is up. The dial waits for the full handshake, so a
// successful Send means the provider acknowledged us.
func (p *Provider) Send(audio []byte) error {
	p.mu.Lock()
	if !p.connected {
		if err := p.dialLocked(); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrProviderNotConnected, err)
		}
	}
	conn := p.conn
	err := conn.WriteMessage(websocket.BinaryMessage, audio)
	p.mu.Unlock()

	if err != nil {
		// Wake the read loop so it observes the dead connection and runs
		// the reconnect path exactly once.
		conn.Close()
		return fmt.Errorf("%w: %v", ErrProviderConnectionFailed, err)
	}
	return nil
}

// Disconnect gracefully terminates the stream: it sends the CloseStream
// control message, waits briefly for the peer's close handshake, then
// clears the connection state and both callbacks. A no-op when not
// connected.
func (p *Provider) Disconnect() error {
	p.mu.Lock()
	if !p.connected {
		p.regGen++ // cancel any reconnect still backing off
		p.mu.Unlock()
		return nil
	}
	p.closing = true
	conn := p.conn
	readDone := p.readDone
	if err := conn.WriteJSON(deepgramCloseStream{Type: "CloseStream"}); err != nil {
		p.logger.Warn("close stream write failed", "error", err)
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	p.mu.Unlock()

	select {
	case <-readDone:
	case <-time.After(closeGrace):
		p.logger.Warn("close handshake timed out")
	}
	conn.Close()

	p.mu.Lock()
	p.conn = nil
	p.connected = false
	p.closing = false
	p.onSegment = nil
	p.onError = nil
	p.language = ""
	p.counter = 0
	p.regGen++
	p.mu.Unlock()

	p.logger.Debug("disconnected")
	return nil
}

// Connected reports whether a live socket is up.
func (p *Provider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// dialLocked opens the WebSocket and starts the read loop. Must be called
// with mu held.
func (p *Provider) dialLocked() error {
	wsURL, err := p.buildURL()
	if err != nil {
		return fmt.Errorf("build websocket url: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			p.logger.Warn("dial rejected", "status", resp.StatusCode)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	p.conn = conn
	p.connected = true
	p.readDone = make(chan struct{})
	p.wg.Add(1)
	go p.readLoop(conn, p.readDone)

	p.logger.Info("provider connected", "model", p.cfg.Model, "language", p.language)
	return nil
}

// buildURL constructs the streaming URL with the fixed encoding parameters
// and the session language.
func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(p.cfg.Endpoint.BaseURL + p.cfg.Endpoint.Path)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	q := u.Query()
	q.Set("model", p.cfg.Model)
	q.Set("encoding", encoding)
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", strconv.Itoa(channels))
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	if p.language != "" {
		q.Set("language", p.language)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop pulls messages off conn until it dies. It owns no state: every
// mutation hops back under mu.
func (p *Provider) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer p.wg.Done()
	defer close(done)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			p.mu.Lock()
			if p.closing || !p.connected || p.conn != conn {
				// Expected close, or a newer connection took over.
				p.mu.Unlock()
				return
			}
			// Unsolicited close: mark down and recover off this goroutine
			// so the read loop exit never blocks on backoff sleeps.
			p.connected = false
			p.conn = nil
			gen := p.regGen
			p.mu.Unlock()

			p.logger.Warn("connection dropped", "error", err)
			p.wg.Add(1)
			go p.reconnect(gen)
			return
		}
		p.handleMessage(payload)
	}
}

// handleMessage parses one inbound frame. Only Results events produce
// segments; payloads of two bytes or fewer that fail to parse are treated
// as keep-alives and dropped silently.
func (p *Provider) handleMessage(payload []byte) {
	var resp deepgramResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		if len(payload) <= 2 {
			return
		}
		p.mu.Lock()
		onError := p.onError
		p.mu.Unlock()
		p.logger.Warn("malformed provider message", "bytes", len(payload), "error", err)
		if onError != nil {
			onError(fmt.Errorf("malformed provider message: %w", err))
		}
		return
	}

	if resp.Type != "Results" {
		p.logger.Debug("ignoring provider event", "type", resp.Type)
		return
	}
	if resp.Channel == nil || len(resp.Channel.Alternatives) == 0 {
		return
	}
	alt := resp.Channel.Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return
	}

	p.mu.Lock()
	p.counter++
	seg := p.buildSegment(&resp, &alt, p.counter)
	onSegment := p.onSegment
	p.mu.Unlock()

	if onSegment != nil {
		onSegment(seg)
	}
}

// buildSegment maps one Results event onto the session segment shape. Must
// be called with mu held (it reads the counter-derived id).
func (p *Provider) buildSegment(resp *deepgramResponse, alt *deepgramAlternative, counter int) session.Segment {
	seg := session.Segment{
		ID:         fmt.Sprintf("%s-%d", p.cfg.Name, counter),
		Text:       alt.Transcript,
		Start:      resp.Start,
		End:        resp.Start + resp.Duration,
		Final:      resp.IsFinal || resp.SpeechFinal,
		ReceivedAt: time.Now().UTC(),
	}
	conf := alt.Confidence
	seg.Confidence = &conf

	if len(alt.Words) > 0 {
		seg.Words = make([]session.Word, 0, len(alt.Words))
		for _, w := range alt.Words {
			word := session.Word{
				Word:           w.Word,
				PunctuatedWord: w.PunctuatedWord,
				Start:          w.Start,
				End:            w.End,
			}
			c := w.Confidence
			word.Confidence = &c
			if w.Speaker != nil {
				sp := *w.Speaker
				word.Speaker = &sp
			}
			seg.Words = append(seg.Words, word)
		}
		if sp := alt.Words[0].Speaker; sp != nil {
			speaker := *sp
			seg.Speaker = &speaker
		}
	}
	return seg
}

// reconnect re-runs the connect protocol with the last-known language, up
// to maxRetries attempts with exponential backoff. On terminal failure the
// error callback gets ErrReconnectionFailed and the provider stays down;
// the session stays active but mute until explicitly stopped.
func (p *Provider) reconnect(gen int) {
	defer p.wg.Done()

	for attempt := 0; attempt < maxRetries; attempt++ {
		delay := retryDelays[attempt]
		p.logger.Info("reconnect attempt scheduled", "attempt", attempt+1, "of", maxRetries, "delay", delay)
		time.Sleep(delay)

		p.mu.Lock()
		if p.closing || p.connected || p.regGen != gen {
			// Disconnected, re-armed, or somebody else already redialed.
			p.mu.Unlock()
			return
		}
		err := p.dialLocked()
		p.mu.Unlock()

		if err == nil {
			p.logger.Info("reconnected", "attempt", attempt+1)
			return
		}
		p.logger.Warn("reconnect attempt failed", "attempt", attempt+1, "error", err)
	}

	p.mu.Lock()
	onError := p.onError
	p.mu.Unlock()

	p.logger.Error("reconnection abandoned", "attempts", maxRetries)
	if onError != nil {
		onError(fmt.Errorf("%w after %d attempts", ErrReconnectionFailed, maxRetries))
	}
}
