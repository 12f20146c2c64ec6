package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/heardlabs/heard/internal/export"
	"github.com/heardlabs/heard/internal/session"
)

// Core drives live sessions.
type Core interface {
	Start(language string) (*session.Session, error)
	Stop(ctx context.Context, id string) (*session.Session, error)
	SendAudio(id string, chunk []byte) error
	GetTranscription(ctx context.Context, id string, from, limit int) ([]session.Segment, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	GetActive(id string) (*session.Session, error)
	ListActive() []*session.Session
}

// Archive reads and prunes stored sessions.
type Archive interface {
	List(ctx context.Context, status string, limit int) ([]*session.Session, error)
	Delete(ctx context.Context, id string) error
}

type tools struct {
	core    Core
	archive Archive
	logger  *log.Logger
}

// sessionPayload is the wire shape of a session summary.
type sessionPayload struct {
	ID        string `json:"id"`
	Language  string `json:"language,omitempty"`
	Provider  string `json:"provider"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
	StoppedAt string `json:"stopped_at,omitempty"`
	Segments  int    `json:"segments"`
}

func toPayload(s *session.Session) sessionPayload {
	p := sessionPayload{
		ID:        s.ID,
		Language:  s.Language,
		Provider:  s.Provider,
		Status:    s.Status,
		StartedAt: s.StartedAt.Format(time.RFC3339Nano),
		Segments:  s.SegmentCount(),
	}
	if s.StoppedAt != nil {
		p.StoppedAt = s.StoppedAt.Format(time.RFC3339Nano)
	}
	return p
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (t *tools) register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("start_transcription",
		mcp.WithDescription("Start a live transcription session. Returns the session, whose id every other tool takes."),
		mcp.WithString("language",
			mcp.Description("Language code such as en, en-US or it. Empty uses the configured default."),
		),
	), t.handleStart)

	s.AddTool(mcp.NewTool("stop_transcription",
		mcp.WithDescription("Stop a live session. The final transcript is persisted before this returns."),
		mcp.WithString("session_id", mcp.Required(),
			mcp.Description("Id of the session to stop."),
		),
	), t.handleStop)

	s.AddTool(mcp.NewTool("send_audio",
		mcp.WithDescription("Send a chunk of raw audio (16-bit linear PCM, 16 kHz, mono) to a live session."),
		mcp.WithString("session_id", mcp.Required(),
			mcp.Description("Id of the receiving session."),
		),
		mcp.WithString("audio", mcp.Required(),
			mcp.Description("Base64-encoded audio bytes."),
		),
	), t.handleSendAudio)

	s.AddTool(mcp.NewTool("get_transcription",
		mcp.WithDescription("Read a window of transcript segments from a live or stored session."),
		mcp.WithString("session_id", mcp.Required(),
			mcp.Description("Id of the session to read."),
		),
		mcp.WithNumber("from_index",
			mcp.DefaultNumber(0),
			mcp.Description("Index of the first segment to return."),
		),
		mcp.WithNumber("limit",
			mcp.DefaultNumber(100),
			mcp.Description("Maximum number of segments to return. Zero or negative returns everything."),
		),
	), t.handleGetTranscription)

	s.AddTool(mcp.NewTool("list_active_sessions",
		mcp.WithDescription("List all currently live sessions."),
	), t.handleListActive)

	s.AddTool(mcp.NewTool("get_active_session",
		mcp.WithDescription("Look up a live session by id."),
		mcp.WithString("session_id", mcp.Required(),
			mcp.Description("Id of the session."),
		),
	), t.handleGetActive)

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List stored sessions, newest first."),
		mcp.WithString("status",
			mcp.Description("Filter by status."),
			mcp.Enum(session.StatusActive, session.StatusStopped),
		),
		mcp.WithNumber("limit",
			mcp.DefaultNumber(50),
			mcp.Description("Maximum number of sessions to return. Zero or negative returns everything."),
		),
	), t.handleListSessions)

	s.AddTool(mcp.NewTool("delete_session",
		mcp.WithDescription("Delete a stored session and its segments."),
		mcp.WithString("session_id", mcp.Required(),
			mcp.Description("Id of the session to delete."),
		),
	), t.handleDelete)

	s.AddTool(mcp.NewTool("export_transcript",
		mcp.WithDescription("Render a session's transcript as plain text, SRT subtitles or JSON."),
		mcp.WithString("session_id", mcp.Required(),
			mcp.Description("Id of the session to export."),
		),
		mcp.WithString("format",
			mcp.DefaultString(export.FormatText),
			mcp.Enum(export.FormatText, export.FormatSRT, export.FormatJSON),
			mcp.Description("Output format."),
		),
	), t.handleExport)
}

func (t *tools) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lang := req.GetString("language", "")
	sess, err := t.core.Start(lang)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t.logger.Info("session started over rpc", "session", sess.ID)
	return jsonResult(toPayload(sess))
}

func (t *tools) handleStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := t.core.Stop(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t.logger.Info("session stopped over rpc", "session", id)
	return jsonResult(toPayload(sess))
}

func (t *tools) handleSendAudio(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	encoded, err := req.RequireString("audio")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	chunk, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return mcp.NewToolResultError("audio is not valid base64: " + err.Error()), nil
	}
	if err := t.core.SendAudio(id, chunk); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"session_id": id,
		"bytes":      len(chunk),
	})
}

func (t *tools) handleGetTranscription(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from := req.GetInt("from_index", 0)
	limit := req.GetInt("limit", 100)

	segs, err := t.core.GetTranscription(ctx, id, from, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"session_id": id,
		"from_index": from,
		"count":      len(segs),
		"segments":   segs,
	})
}

func (t *tools) handleListActive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := t.core.ListActive()
	payloads := make([]sessionPayload, len(sessions))
	for i, s := range sessions {
		payloads[i] = toPayload(s)
	}
	return jsonResult(map[string]any{
		"count":    len(payloads),
		"sessions": payloads,
	})
}

func (t *tools) handleGetActive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := t.core.GetActive(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(toPayload(sess))
}

func (t *tools) handleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := req.GetString("status", "")
	if status != "" && status != session.StatusActive && status != session.StatusStopped {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", status)), nil
	}
	limit := req.GetInt("limit", 50)

	sessions, err := t.archive.List(ctx, status, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	payloads := make([]sessionPayload, len(sessions))
	for i, s := range sessions {
		payloads[i] = toPayload(s)
	}
	return jsonResult(map[string]any{
		"count":    len(payloads),
		"sessions": payloads,
	})
}

func (t *tools) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.archive.Delete(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t.logger.Info("session deleted over rpc", "session", id)
	return jsonResult(map[string]any{"deleted": id})
}

func (t *tools) handleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format := req.GetString("format", export.FormatText)

	sess, err := t.core.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := export.Render(sess, format)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}
