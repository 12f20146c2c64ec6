// Package daemon wires the session engine together and runs the
// configured transports.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/heardlabs/heard/internal/config"
	"github.com/heardlabs/heard/internal/ingress"
	"github.com/heardlabs/heard/internal/manager"
	"github.com/heardlabs/heard/internal/rpc"
	"github.com/heardlabs/heard/internal/store"
	"github.com/heardlabs/heard/internal/stream"
)

// shutdownGrace bounds how long final saves and in-flight requests get
// on the way down.
const shutdownGrace = 5 * time.Second

type Options struct {
	Config  *config.Config
	Version string
	Logger  *log.Logger
}

// Daemon owns the session engine and its transports for one serve run.
type Daemon struct {
	cfg     *config.Config
	version string
	logger  *log.Logger

	store   *store.Store
	pool    *stream.Pool
	manager *manager.Manager
	rpc     *rpc.Server

	mu     sync.Mutex
	httpLn net.Listener
}

// New builds the engine: storage, the provider pool, the session
// manager, and the RPC server. Transports start in Run.
func New(opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	cfg := opts.Config

	streamCfg, err := cfg.ToStreamConfig()
	if err != nil {
		return nil, err
	}

	dbPath, err := cfg.StoragePath()
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	pool := stream.NewPool(cfg.Transcription.PoolSize, func() *stream.Provider {
		return stream.New(streamCfg, logger)
	})

	mgr := manager.New(manager.Options{
		Store:    st,
		Streams:  func() manager.Streamer { return pool.Get() },
		Provider: cfg.Transcription.Provider,
		Language: cfg.Transcription.Language,
		Logger:   logger,
	})

	return &Daemon{
		cfg:     cfg,
		version: opts.Version,
		logger:  logger.WithPrefix("daemon"),
		store:   st,
		pool:    pool,
		manager: mgr,
		rpc:     rpc.NewServer(mgr, st, opts.Version, logger),
	}, nil
}

// Manager exposes the session manager for in-process clients.
func (d *Daemon) Manager() *manager.Manager {
	return d.manager
}

// Addr returns the bound HTTP address once Run has started the HTTP
// transport, "" otherwise.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.httpLn == nil {
		return ""
	}
	return d.httpLn.Addr().String()
}

// Run starts the configured transports and blocks until a signal, a
// transport failure, or ctx cancellation. It refuses to start while
// another instance holds the pid file.
func (d *Daemon) Run(ctx context.Context) error {
	if pid, running := Running(); running {
		return fmt.Errorf("daemon already running with pid %d", pid)
	}
	if err := WritePid(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer RemovePid()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			d.logger.Info("shutting down", "signal", sig)
			cancel()
		case <-runCtx.Done():
		}
	}()

	wantStdio, wantHTTP, err := transports(d.cfg.Server.Transport)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	var httpSrv *http.Server

	if wantHTTP {
		ln, err := net.Listen("tcp", d.cfg.Server.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", d.cfg.Server.HTTPAddr, err)
		}
		d.mu.Lock()
		d.httpLn = ln
		d.mu.Unlock()

		httpSrv = &http.Server{Handler: d.routes()}
		go func() {
			d.logger.Info("http transport listening", "addr", ln.Addr().String())
			if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	if wantStdio {
		go func() {
			d.logger.Info("stdio transport ready")
			if err := d.rpc.ServeStdio(); err != nil && runCtx.Err() == nil {
				errCh <- fmt.Errorf("stdio server: %w", err)
				return
			}
			// stdin closed: the client is gone, wind the daemon down.
			d.logger.Info("stdio client disconnected")
			cancel()
		}()
	}

	var runErr error
	select {
	case <-runCtx.Done():
	case runErr = <-errCh:
		cancel()
	}

	d.shutdown(httpSrv)
	return runErr
}

func (d *Daemon) shutdown(httpSrv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("http shutdown", "error", err)
		}
	}
	d.manager.StopAll(shutdownCtx)
	// StopAll disconnects per session; the sweep catches providers a
	// failed stop left connected.
	d.pool.Each(func(p *stream.Provider) {
		if err := p.Disconnect(); err != nil {
			d.logger.Warn("disconnect pooled stream", "error", err)
		}
	})
	if err := d.store.Close(); err != nil {
		d.logger.Warn("close store", "error", err)
	}
	d.logger.Info("daemon stopped")
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", d.rpc.HTTPHandler())
	mux.Handle("/ingress", ingress.NewHandler(d.manager, d.logger))
	mux.HandleFunc("/healthz", d.handleHealthz)
	return mux
}

type healthStatus struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	ActiveSessions int    `json:"active_sessions"`
}

func (d *Daemon) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthStatus{
		Status:         "ok",
		Version:        d.version,
		ActiveSessions: len(d.manager.ListActive()),
	})
}

func transports(mode string) (useStdio, useHTTP bool, err error) {
	switch mode {
	case config.TransportStdio:
		return true, false, nil
	case config.TransportHTTP:
		return false, true, nil
	case config.TransportBoth:
		return true, true, nil
	default:
		return false, false, fmt.Errorf("unknown transport %q", mode)
	}
}
