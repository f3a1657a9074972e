package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/example/go-nowledge-encoder/internal/chunk"
)

type encodeResult struct {
	Model string   `json:"model"`
	IDs   []uint32 `json:"ids"`
	Count int      `json:"count"`
}

func (s *Server) handleEncode(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, errResult := s.encode(req)
	if errResult != nil {
		return errResult, nil
	}

	out, err := json.Marshal(encodeResult{Model: s.enc.ModelID(), IDs: ids, Count: len(ids)})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal ids: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) handleCountTokens(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, errResult := s.encode(req)
	if errResult != nil {
		return errResult, nil
	}
	return mcp.NewToolResultText(strconv.Itoa(len(ids))), nil
}

type chunkResult struct {
	Model  string        `json:"model"`
	Chunks []chunk.Chunk `json:"chunks"`
}

func (s *Server) handleChunk(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	if len(text) > s.opts.maxTextBytes {
		return mcp.NewToolResultError(fmt.Sprintf("text exceeds maximum size of %d bytes", s.opts.maxTextBytes)), nil
	}

	opts := chunk.Options{
		MaxTokens: req.GetInt("max_tokens", chunk.DefaultMaxTokens),
		Overlap:   req.GetInt("overlap", chunk.DefaultOverlap),
	}
	if err := opts.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	start := time.Now()
	chunks, err := chunk.Split(s.enc, text, opts)
	if err != nil {
		s.opts.logger.Error("mcp chunk failed",
			slog.Int("text_len", len(text)),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultError(fmt.Sprintf("chunk failed: %v", err)), nil
	}
	if chunks == nil {
		chunks = []chunk.Chunk{}
	}

	s.opts.logger.Debug("mcp chunk complete",
		slog.Int("text_len", len(text)),
		slog.Int("chunks", len(chunks)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	out, err := json.Marshal(chunkResult{Model: s.enc.ModelID(), Chunks: chunks})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal chunks: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// encode validates the text argument and runs the encoder. Failures come
// back as tool error results so the client sees them as call output.
func (s *Server) encode(req mcp.CallToolRequest) ([]uint32, *mcp.CallToolResult) {
	text, err := req.RequireString("text")
	if err != nil {
		return nil, mcp.NewToolResultError("missing required parameter: text")
	}
	if len(text) > s.opts.maxTextBytes {
		return nil, mcp.NewToolResultError(fmt.Sprintf("text exceeds maximum size of %d bytes", s.opts.maxTextBytes))
	}

	start := time.Now()
	ids, err := s.enc.Encode(text)
	if err != nil {
		s.opts.logger.Error("mcp encode failed",
			slog.String("tool", req.Params.Name),
			slog.Int("text_len", len(text)),
			slog.String("error", err.Error()),
		)
		return nil, mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err))
	}

	s.opts.logger.Debug("mcp encode complete",
		slog.String("tool", req.Params.Name),
		slog.Int("text_len", len(text)),
		slog.Int("tokens", len(ids)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	if ids == nil {
		ids = []uint32{}
	}
	return ids, nil
}
