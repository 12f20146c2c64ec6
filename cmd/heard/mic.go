package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/heardlabs/heard/internal/recording"
)

func micCmd() *cobra.Command {
	var sessionID string
	var addr string
	var device string

	cmd := &cobra.Command{
		Use:   "mic",
		Short: "Stream microphone audio into a live session",
		Long: `Capture microphone audio with pw-record and stream it into a live
transcription session through the daemon's websocket ingress.
Stop with ctrl-c.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = loadConfigOrDefault().Server.HTTPAddr
			}
			return runMic(cmd.Context(), sessionID, addr, device)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "live session id (required)")
	cmd.Flags().StringVar(&addr, "addr", "", "daemon http address (default from config)")
	cmd.Flags().StringVar(&device, "device", "", "capture device passed to pw-record --target")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func runMic(ctx context.Context, sessionID, addr, device string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ingressURL(addr, sessionID), nil)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", addr, err)
	}
	defer conn.Close()

	recCfg := recording.DefaultConfig()
	recCfg.Device = device
	rec := recording.New(recCfg, log.New(os.Stderr))

	frames, errs, err := rec.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	defer rec.Wait()
	defer rec.Stop()

	// The daemon signals an unknown or stopped session with a close
	// frame, which gorilla only surfaces from a read.
	readErrCh := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErrCh <- err
				return
			}
		}
	}()

	fmt.Fprintf(os.Stderr, "streaming microphone audio to session %s (ctrl-c to stop)\n", sessionID)

	for {
		select {
		case <-ctx.Done():
			return closeStream(conn)

		case err := <-readErrCh:
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Text != "" {
				return fmt.Errorf("daemon closed the stream: %s", closeErr.Text)
			}
			return fmt.Errorf("daemon connection lost: %w", err)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return fmt.Errorf("capture failed: %w", err)

		case frame, ok := <-frames:
			if !ok {
				// pw-record exited on its own.
				return closeStream(conn)
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
				return fmt.Errorf("failed to send audio: %w", err)
			}
		}
	}
}

func ingressURL(addr, sessionID string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ingress"}
	q := u.Query()
	q.Set("session", sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}

func closeStream(conn *websocket.Conn) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return nil
}
