package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"

	"github.com/njchilds90/autodiff"
	"github.com/njchilds90/autodiff/internal/metrics"
)

const maxBodyBytes = 1 << 20 // 1 MiB

type MCPOptions struct {
	ListenAddress string
	Mode          string
	Level         log.Level
	Workers       int
}

// service runs tool calls and records them.
type service struct {
	logger  log.FieldLogger
	metrics *metrics.Recorder
	workers int
}

func newService(logger log.FieldLogger, workers int) *service {
	return &service{logger: logger, metrics: metrics.New(), workers: workers}
}

// call runs one tool call with a fresh correlation id.
func (s *service) call(tool string, params map[string]interface{}, transport string) autodiff.ToolResponse {
	id := uuid.New().String()
	logger := s.logger.WithFields(log.Fields{
		"request_id": id,
		"tool":       tool,
		"transport":  transport,
	})
	logger.Debug("Executing tool")

	if params == nil {
		params = map[string]interface{}{}
	}
	if _, ok := params["workers"]; !ok && s.workers > 1 {
		params["workers"] = s.workers
	}
	switch f := params["formulas"].(type) {
	case []interface{}:
		s.metrics.ObserveFormulas(len(f))
	case string:
		s.metrics.ObserveFormulas(1)
	}

	start := time.Now()
	resp := autodiff.HandleToolCall(autodiff.ToolRequest{Tool: tool, Params: params})
	elapsed := time.Since(start)

	kind := resp.Kind
	if resp.Error != "" && kind == "" {
		kind = "unknown"
	}
	s.metrics.Observe(tool, transport, kind, elapsed)
	if resp.Error != "" {
		logger.WithFields(log.Fields{"duration": elapsed, "kind": resp.Kind}).WithField("error", resp.Error).Warn("Tool call failed")
	} else {
		logger.WithField("duration", elapsed).Info("Tool call completed")
	}
	return resp
}

// ============================================================
// MCP transport
// ============================================================

func (s *service) mcpServer() *server.MCPServer {
	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		s.logger.WithField("session_id", session.SessionID()).Info("MCP client session registered")
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		s.logger.WithField("session_id", session.SessionID()).Info("MCP client session unregistered")
	})

	srv := server.NewMCPServer(
		"autodiff MCP Server",
		"0.1.0",
		server.WithToolCapabilities(false),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithHooks(hooks),
	)
	for _, name := range autodiff.ToolNames() {
		if name == "mcp_spec" {
			continue
		}
		srv.AddTool(newTool(name), s.toolHandler(name))
		s.logger.WithField("tool", name).Debug("Registered tool")
	}
	return srv
}

// newTool converts the dispatcher schema of one tool into an MCP tool.
func newTool(name string) mcp.Tool {
	description, required, props, _ := autodiff.ToolSpec(name)
	isRequired := make(map[string]bool, len(required))
	for _, r := range required {
		isRequired[r] = true
	}
	opts := []mcp.ToolOption{mcp.WithDescription(description)}
	for prop, typ := range props {
		var popts []mcp.PropertyOption
		if isRequired[prop] {
			popts = append(popts, mcp.Required())
		}
		switch typ {
		case "string":
			opts = append(opts, mcp.WithString(prop, popts...))
		case "boolean":
			opts = append(opts, mcp.WithBoolean(prop, popts...))
		case "object":
			opts = append(opts, mcp.WithObject(prop, popts...))
		case "array":
			opts = append(opts, mcp.WithArray(prop, popts...))
		case "number", "integer":
			opts = append(opts, mcp.WithNumber(prop, popts...))
		}
	}
	return mcp.NewTool(name, opts...)
}

func (s *service) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError("request cancelled"), nil
		}
		resp := s.call(name, request.GetArguments(), "mcp")
		if resp.Error != "" {
			return mcp.NewToolResultError(resp.Error), nil
		}
		b, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(b)), nil
	}
}

// ============================================================
// Plain HTTP endpoints
// ============================================================

func (s *service) handler(mcpServer *server.MCPServer) http.Handler {
	mux := http.NewServeMux()
	if mcpServer != nil {
		mux.Handle("/mcp", server.NewStreamableHTTPServer(mcpServer))
	}
	mux.HandleFunc("/tool", s.handleTool)
	mux.HandleFunc("/schema", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, autodiff.MCPToolSpec())
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *service) handleTool(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.WithField("panic", rec).WithField("stack", string(debug.Stack())).Error("panic in /tool")
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req autodiff.ToolRequest
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if dec.More() {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: trailing data")
		return
	}

	resp := s.call(req.Tool, req.Params, "http")
	b, err := json.Marshal(resp)
	if err != nil {
		s.logger.WithError(err).WithField("tool", req.Tool).Error("Failed to encode tool response")
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("encoding result: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(append(b, '\n'))
}

// ============================================================
// Run
// ============================================================

func (o *MCPOptions) Run() error {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(o.Level)
	logger.WithFields(log.Fields{
		"mode":           o.Mode,
		"listen_address": o.ListenAddress,
	}).Info("Initializing MCP server")

	s := newService(logger, o.Workers)
	mcpServer := s.mcpServer()
	logger.Info("All MCP tools registered successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	errChan := make(chan error, 1)

	switch o.Mode {
	case "stdio":
		logger.Info("Starting stdio MCP server (press Ctrl+C to stop)")
		go func() {
			errChan <- server.ServeStdio(mcpServer)
		}()
		select {
		case err := <-errChan:
			if err != nil {
				logger.WithError(err).Error("Stdio server failed")
			}
			return err
		case sig := <-sigChan:
			logger.WithField("signal", sig).Info("Received signal, shutting down stdio server...")
			return nil
		}

	case "http":
		srv := &http.Server{
			Addr:              o.ListenAddress,
			Handler:           s.handler(mcpServer),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		logger.WithField("endpoint", fmt.Sprintf("http://localhost%s/mcp", o.ListenAddress)).Info("Starting HTTP MCP server (press Ctrl+C to stop)")
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- err
				return
			}
			errChan <- nil
		}()
		select {
		case err := <-errChan:
			if err != nil {
				logger.WithError(err).Error("HTTP server failed")
			}
			return err
		case sig := <-sigChan:
			logger.WithField("signal", sig).Info("Received signal, shutting down HTTP server...")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.WithError(err).Error("Error during graceful shutdown")
				return err
			}
			logger.Info("HTTP server shutdown completed successfully")
			return nil
		}
	}
	return fmt.Errorf("unsupported mode: %s", o.Mode)
}
