// Package mcp exposes the consolidation engine over MCP JSON-RPC on stdio.
// Clients speak either Content-Length framed messages or bare JSON lines;
// each reply uses whichever framing the request arrived in.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/xiy/engram-mcp/internal/engine"
	"github.com/xiy/engram-mcp/internal/store"
)

const (
	jsonRPCVersion  = "2.0"
	protocolDefault = "2024-11-05"
	serverVersion   = "0.1.0"
)

// RequestLogSink receives one summarized row per handled request, feeding the
// admin dashboard. A sink failure is logged and never fails the request.
type RequestLogSink interface {
	LogRequest(ctx context.Context, entry store.RequestLogEntry) error
}

// Server dispatches MCP JSON-RPC messages to the engine.
type Server struct {
	eng    *engine.Engine
	logger *log.Logger
	sink   RequestLogSink
	name   string

	requests atomic.Uint64
	errors   atomic.Uint64
}

func NewServer(eng *engine.Engine, logger *log.Logger, sink RequestLogSink, name string) *Server {
	if name == "" {
		name = "engram-mcp"
	}
	return &Server{eng: eng, logger: logger, sink: sink, name: name}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Serve pumps requests from in to the engine until EOF or ctx cancellation.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	w := newWire(in, out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, err := w.read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		var req rpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			s.logger.Warn("undecodable JSON-RPC message", "error", err)
			resp := failure(nil, -32700, "parse error", err.Error())
			s.record(ctx, rpcRequest{Method: "parse_error"}, resp, 0)
			if werr := w.write(resp); werr != nil {
				return werr
			}
			continue
		}

		started := time.Now()
		resp, wantReply := s.handle(ctx, req)
		s.record(ctx, req, resp, time.Since(started))
		if !wantReply {
			continue
		}
		if err := w.write(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handle(ctx context.Context, req rpcRequest) (rpcResponse, bool) {
	s.requests.Add(1)

	hasID := len(req.ID) > 0
	id := decodeID(req.ID)
	reply := func(result any) (rpcResponse, bool) {
		return rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}, hasID
	}

	switch req.Method {
	case "notifications/initialized":
		return rpcResponse{}, false

	case "initialize":
		var p struct {
			ProtocolVersion string `json:"protocolVersion"`
		}
		_ = json.Unmarshal(req.Params, &p)
		pv := strings.TrimSpace(p.ProtocolVersion)
		if pv == "" {
			pv = protocolDefault
		}
		return reply(map[string]any{
			"protocolVersion": pv,
			"capabilities":    map[string]any{"tools": map[string]any{"listChanged": false}},
			"serverInfo":      map[string]any{"name": s.name, "version": serverVersion},
		})

	case "ping":
		return reply(map[string]any{})

	case "tools/list":
		return reply(map[string]any{"tools": toolDefinitions()})

	case "tools/call":
		res, err := s.handleToolCall(ctx, req.Params)
		if err != nil {
			s.errors.Add(1)
			return reply(map[string]any{
				"content": []map[string]any{{"type": "text", "text": err.Error()}},
				"isError": true,
			})
		}
		return reply(res)

	default:
		if !hasID {
			return rpcResponse{}, false
		}
		return failure(id, -32601, "method not found", req.Method), true
	}
}

// record persists a one-row summary of the request to the sink.
func (s *Server) record(ctx context.Context, req rpcRequest, resp rpcResponse, elapsed time.Duration) {
	if s.sink == nil {
		return
	}
	ok, errText := outcome(resp)
	entry := store.RequestLogEntry{
		Method:     strings.TrimSpace(req.Method),
		ToolName:   calledTool(req),
		Success:    ok,
		ErrorText:  errText,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if entry.Method == "" {
		entry.Method = "unknown"
	}
	if err := s.sink.LogRequest(ctx, entry); err != nil {
		s.logger.Warn("request log write failed", "error", err)
	}
}

func calledTool(req rpcRequest) string {
	if req.Method != "tools/call" || len(req.Params) == 0 {
		return ""
	}
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return ""
	}
	return strings.TrimSpace(p.Name)
}

// outcome reports whether the response represents success, and the error text
// when it does not. Tool failures ride inside Result with isError set, so a
// nil Error alone does not mean success.
func outcome(resp rpcResponse) (bool, string) {
	if resp.Error != nil {
		return false, strings.TrimSpace(resp.Error.Message)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		return true, ""
	}
	isError, _ := result["isError"].(bool)
	if !isError {
		return true, ""
	}
	if content, ok := result["content"].([]map[string]any); ok && len(content) > 0 {
		if text, _ := content[0]["text"].(string); strings.TrimSpace(text) != "" {
			return false, strings.TrimSpace(text)
		}
	}
	return false, "tool call failed"
}

// toolSuccess wraps a tool result as MCP content plus structuredContent.
func toolSuccess(v any) (map[string]any, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"content":           []map[string]any{{"type": "text", "text": string(b)}},
		"structuredContent": v,
		"isError":           false,
	}, nil
}

func failure(id any, code int, msg string, data any) rpcResponse {
	return rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &rpcError{Code: code, Message: msg, Data: data},
	}
}

func decodeID(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// Snapshot returns the request counters for dashboards.
func (s *Server) Snapshot() map[string]any {
	return map[string]any{
		"requests": s.requests.Load(),
		"errors":   s.errors.Load(),
		"ts":       time.Now().UTC(),
	}
}

type wireMode int

const (
	wireModeFramed wireMode = iota
	wireModeJSONLine
)

// wire is the stdio codec. Each read sniffs the framing of the incoming
// message and remembers it so the matching write answers in kind.
type wire struct {
	r    *bufio.Reader
	w    *bufio.Writer
	mode wireMode
}

func newWire(in io.Reader, out io.Writer) *wire {
	return &wire{r: bufio.NewReader(in), w: bufio.NewWriter(out)}
}

func (c *wire) read() ([]byte, error) {
	mode, err := c.sniff()
	if err != nil {
		return nil, err
	}
	c.mode = mode
	if mode == wireModeJSONLine {
		return c.readLine()
	}
	return c.readFramed()
}

// sniff peeks past leading whitespace and decides how the next message is
// framed. Anything not starting with a Content-Length header is a JSON line.
func (c *wire) sniff() (wireMode, error) {
	for {
		b, err := c.r.Peek(1)
		if err != nil {
			return wireModeFramed, err
		}
		if !unicode.IsSpace(rune(b[0])) {
			break
		}
		_, _ = c.r.ReadByte()
	}

	peek, err := c.r.Peek(16)
	if err != nil && !errors.Is(err, bufio.ErrBufferFull) && !errors.Is(err, io.EOF) {
		return wireModeFramed, err
	}
	if strings.HasPrefix(strings.ToLower(string(peek)), "content-length:") {
		return wireModeFramed, nil
	}
	return wireModeJSONLine, nil
}

func (c *wire) readLine() ([]byte, error) {
	for {
		line, err := c.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return line, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

func (c *wire) readFramed() ([]byte, error) {
	contentLength := 0
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length: %w", err)
			}
			contentLength = n
		}
	}
	if contentLength <= 0 {
		return nil, fmt.Errorf("missing or invalid Content-Length")
	}

	buf := make([]byte, contentLength)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *wire) write(msg rpcResponse) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if c.mode == wireModeJSONLine {
		if _, err := c.w.Write(payload); err != nil {
			return err
		}
		if err := c.w.WriteByte('\n'); err != nil {
			return err
		}
		return c.w.Flush()
	}
	if _, err := fmt.Fprintf(c.w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return err
	}
	if _, err := c.w.Write(payload); err != nil {
		return err
	}
	return c.w.Flush()
}
