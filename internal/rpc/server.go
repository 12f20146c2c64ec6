package rpc

import (
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"
)

const serverName = "heard"

// Server exposes the session tools over the Model Context Protocol,
// either on stdio or mounted as an HTTP handler.
type Server struct {
	mcp *server.MCPServer
}

func NewServer(core Core, archive Archive, version string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	t := &tools{
		core:    core,
		archive: archive,
		logger:  logger.WithPrefix("rpc"),
	}
	t.register(s)
	return &Server{mcp: s}
}

// ServeStdio blocks serving line-delimited JSON-RPC on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// HTTPHandler returns the streamable HTTP transport, ready to mount
// on a mux. Sessions are stateless: every request carries its tool
// call and gets its result back on the same exchange.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}
