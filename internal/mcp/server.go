// Package mcp serves the encoder as Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/example/go-nowledge-encoder/internal/chunk"
)

const serverName = "nowledge-encoder"

// Encoder turns text into token ids. *encoder.Encoder satisfies it.
type Encoder interface {
	Encode(text string) ([]uint32, error)
	ModelID() string
}

type options struct {
	maxTextBytes int
	logger       *slog.Logger
}

// Option configures the MCP server.
type Option func(*options)

// WithMaxTextBytes rejects tool calls whose text is longer than n bytes.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithLogger sets the logger used for tool call logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Server exposes the encode, count_tokens and chunk tools.
type Server struct {
	enc  Encoder
	opts options
	mcp  *server.MCPServer
}

// NewServer registers the tools for enc. version is reported during the
// MCP handshake.
func NewServer(enc Encoder, version string, optFns ...Option) *Server {
	opts := options{
		maxTextBytes: 1 << 20,
		logger:       slog.Default(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		enc:  enc,
		opts: opts,
		mcp:  server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("encode",
		mcp.WithDescription("Tokenize text with "+enc.ModelID()+" and return the token ids, including the model's boundary tokens."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to tokenize")),
	), s.handleEncode)

	s.mcp.AddTool(mcp.NewTool("count_tokens",
		mcp.WithDescription("Count the tokens "+enc.ModelID()+" produces for text, including boundary tokens."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to measure")),
	), s.handleCountTokens)

	s.mcp.AddTool(mcp.NewTool("chunk",
		mcp.WithDescription("Split markdown into chunks of at most max_tokens "+enc.ModelID()+" tokens. Cuts fall on blank lines and never inside fenced code blocks."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Markdown to split")),
		mcp.WithNumber("max_tokens", mcp.Description("Token budget per chunk"), mcp.DefaultNumber(chunk.DefaultMaxTokens)),
		mcp.WithNumber("overlap", mcp.Description("Tokens repeated from the previous chunk"), mcp.DefaultNumber(chunk.DefaultOverlap)),
	), s.handleChunk)

	return s
}

// ServeStdio serves MCP over the process's stdin and stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// Listen serves MCP over the given streams until ctx is done or in reaches EOF.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}
