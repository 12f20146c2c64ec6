package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/heardlabs/heard/internal/config"
	"github.com/heardlabs/heard/internal/export"
	"github.com/heardlabs/heard/internal/postproc"
	"github.com/heardlabs/heard/internal/session"
	"github.com/heardlabs/heard/internal/store"
)

func sessionsCmd() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored transcription sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(cmd.Context(), status, limit)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", `filter by status ("active", "stopped")`)
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to list (0 for all)")
	return cmd
}

func runSessions(ctx context.Context, status string, limit int) error {
	st, err := openStore(false)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.List(ctx, status, limit)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no stored sessions")
		return nil
	}

	for _, sess := range sessions {
		fmt.Println(sessionLine(sess))
	}
	return nil
}

func sessionLine(s *session.Session) string {
	line := fmt.Sprintf("%s  %-7s  %s", s.ID, s.Status, s.StartedAt.Local().Format("2006-01-02 15:04:05"))
	line += fmt.Sprintf("  %d segments", s.SegmentCount())
	if d, ok := s.Duration(); ok {
		line += fmt.Sprintf("  %s", d.Round(time.Second))
	}
	return line
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a stored session and its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), args[0])
		},
	}
}

func runShow(ctx context.Context, id string) error {
	st, err := openStore(false)
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := findSession(ctx, st, id)
	if err != nil {
		return err
	}

	lang := sess.Language
	if lang == "" {
		lang = "auto"
	}
	fmt.Printf("id:        %s\n", sess.ID)
	fmt.Printf("status:    %s\n", sess.Status)
	fmt.Printf("provider:  %s\n", sess.Provider)
	fmt.Printf("language:  %s\n", lang)
	fmt.Printf("started:   %s\n", sess.StartedAt.Local().Format(time.RFC1123))
	if sess.StoppedAt != nil {
		fmt.Printf("stopped:   %s\n", sess.StoppedAt.Local().Format(time.RFC1123))
	}
	if d, ok := sess.Duration(); ok {
		fmt.Printf("duration:  %s\n", d.Round(time.Second))
	}
	fmt.Printf("segments:  %d\n", sess.SegmentCount())

	if transcript := sess.Transcript(); transcript != "" {
		fmt.Println()
		fmt.Println(transcript)
	}
	return nil
}

func exportCmd() *cobra.Command {
	var format string
	var output string
	var polish bool

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session transcript",
		Long: `Export a stored session as plain text, SubRip subtitles or JSON.
With --polish the transcript is cleaned up by the configured LLM first
(text format only).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), args[0], format, output, polish)
		},
	}

	cmd.Flags().StringVar(&format, "format", export.FormatText,
		fmt.Sprintf("output format (%s)", strings.Join(export.Formats(), ", ")))
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().BoolVar(&polish, "polish", false, "clean up the transcript with the configured LLM")
	return cmd
}

func runExport(ctx context.Context, id, format, output string, polish bool) error {
	if polish && format != export.FormatText && format != "" {
		return fmt.Errorf("--polish only applies to the %s format", export.FormatText)
	}

	st, err := openStore(false)
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := findSession(ctx, st, id)
	if err != nil {
		return err
	}

	rendered, err := export.Render(sess, format)
	if err != nil {
		return err
	}
	if polish {
		rendered, err = polishTranscript(ctx, rendered)
		if err != nil {
			return fmt.Errorf("failed to polish transcript: %w", err)
		}
	}
	if !strings.HasSuffix(rendered, "\n") {
		rendered += "\n"
	}

	if output == "" {
		fmt.Print(rendered)
		return nil
	}
	if err := os.WriteFile(output, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	fmt.Printf("wrote %s\n", output)
	return nil
}

func polishTranscript(ctx context.Context, transcript string) (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if !cfg.IsPostprocessingEnabled() {
		return "", fmt.Errorf("postprocessing is disabled, enable it with heard configure")
	}

	polisher, err := postproc.New(cfg.ToPostprocConfig(), log.New(os.Stderr))
	if err != nil {
		return "", err
	}
	return polisher.Polish(ctx, transcript)
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), args[0])
		},
	}
}

func runDelete(ctx context.Context, id string) error {
	st, err := openStore(true)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	fmt.Printf("session %s deleted\n", id)
	return nil
}

// openStore opens the session database next to a possibly running
// daemon: read-only for listing and export, writable for delete.
func openStore(writable bool) (*store.Store, error) {
	cfg := loadConfigOrDefault()
	path, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no session database at %s, run heard serve first", path)
	}
	if writable {
		return store.Open(path)
	}
	return store.OpenReadOnly(path)
}

func findSession(ctx context.Context, st *store.Store, id string) (*session.Session, error) {
	sess, err := st.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return sess, nil
}
