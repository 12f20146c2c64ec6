// Package recording captures microphone audio with pw-record.
package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// AudioFrame is one chunk of raw PCM read from the capture process.
type AudioFrame struct {
	Data      []byte
	Timestamp time.Time
}

// Config describes the capture format. The defaults match what the
// streaming providers expect: 16kHz mono 16-bit PCM.
type Config struct {
	SampleRate int
	Channels   int
	Format     string
	ReadSize   int    // bytes per read from pw-record stdout
	Device     string // pw-record --target, default source when empty
	QueueSize  int    // frames buffered before drops kick in
}

func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		Channels:   1,
		Format:     "s16",
		ReadSize:   4096,
		QueueSize:  32,
	}
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", c.Channels)
	}
	if c.Format == "" {
		return errors.New("capture format is empty")
	}
	if c.ReadSize <= 0 {
		return fmt.Errorf("invalid read size: %d", c.ReadSize)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("invalid queue size: %d", c.QueueSize)
	}
	return nil
}

func (c Config) args() []string {
	args := []string{
		"--format", c.Format,
		"--rate", strconv.Itoa(c.SampleRate),
		"--channels", strconv.Itoa(c.Channels),
	}
	if c.Device != "" {
		args = append(args, "--target", c.Device)
	}
	return append(args, "-")
}

// Recorder runs a single pw-record process and fans its stdout out as
// AudioFrames.
type Recorder struct {
	cfg    Config
	logger *log.Logger

	capturing atomic.Bool

	mu     sync.Mutex // guards cancel
	cancel context.CancelFunc

	wg sync.WaitGroup
}

func New(cfg Config, logger *log.Logger) *Recorder {
	return &Recorder{cfg: cfg, logger: logger.WithPrefix("recording")}
}

func NewDefault(logger *log.Logger) *Recorder {
	return New(DefaultConfig(), logger)
}

func (r *Recorder) Capturing() bool {
	return r.capturing.Load()
}

// Start launches pw-record and streams its stdout as frames. Both
// channels close when capture ends. Frames that arrive while the queue
// is full are dropped so a slow consumer cannot stall the capture
// process.
func (r *Recorder) Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error) {
	if !r.capturing.CompareAndSwap(false, true) {
		return nil, nil, errors.New("already capturing")
	}
	if err := r.cfg.validate(); err != nil {
		r.capturing.Store(false)
		return nil, nil, err
	}
	if err := Available(ctx); err != nil {
		r.capturing.Store(false)
		return nil, nil, err
	}

	captureCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	frames := make(chan AudioFrame, r.cfg.QueueSize)
	errs := make(chan error, 1)

	r.wg.Add(1)
	go r.captureLoop(captureCtx, frames, errs)
	return frames, errs, nil
}

// Stop asks the capture loop to exit. Safe to call at any time.
func (r *Recorder) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the capture loop has fully wound down.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) captureLoop(ctx context.Context, frames chan<- AudioFrame, errs chan<- error) {
	defer func() {
		close(frames)
		close(errs)
		r.capturing.Store(false)
		r.wg.Done()
	}()

	cmd := exec.CommandContext(ctx, "pw-record", r.cfg.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.emit(errs, fmt.Errorf("pw-record stdout: %w", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.emit(errs, fmt.Errorf("pw-record stderr: %w", err))
		return
	}

	if err := cmd.Start(); err != nil {
		r.emit(errs, fmt.Errorf("start pw-record: %w", err))
		return
	}
	defer cmd.Wait()

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			r.logger.Debug("pw-record", "stderr", scanner.Text())
		}
	}()

	buf := make([]byte, r.cfg.ReadSize)
	var dropped int
	lastDropLog := time.Now()

	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			select {
			case frames <- AudioFrame{Data: data, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			default:
				dropped++
				if time.Since(lastDropLog) > time.Second {
					r.logger.Warn("dropping audio frames, consumer too slow", "dropped", dropped)
					lastDropLog = time.Now()
					dropped = 0
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return
			}
			if ctx.Err() == nil {
				r.emit(errs, fmt.Errorf("read audio: %w", readErr))
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (r *Recorder) emit(errs chan<- error, err error) {
	r.logger.Error("capture failed", "error", err)
	select {
	case errs <- err:
	default:
	}
}

// Available reports whether pw-record can run on this machine.
func Available(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found, install pipewire tools: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := exec.CommandContext(checkCtx, "pw-cli", "info").Run(); err != nil {
		return fmt.Errorf("pipewire not running: %w", err)
	}
	return nil
}
