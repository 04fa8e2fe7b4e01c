// mcp-server exposes the autodiff tools to AI agent frameworks, either as an
// MCP server over stdio or over HTTP.
//
// Usage:
//
//	mcp-server --mode stdio
//	mcp-server --mode http --listen :8080
//
// HTTP endpoints:
//
//	/mcp      MCP streamable HTTP transport
//	POST /tool    plain JSON tool call {"tool": ..., "params": {...}}
//	GET  /schema  tool schema for agent registration
//	GET  /health  liveness check
//	GET  /metrics Prometheus metrics
package main

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type MCPFlags struct {
	ListenAddress string
	Mode          string
	LogLevel      string
	Workers       int
}

func NewMCPFlags() *MCPFlags {
	return &MCPFlags{
		ListenAddress: ":8080",
		Mode:          "stdio",
		LogLevel:      "info",
		Workers:       1,
	}
}

func (f *MCPFlags) BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&f.ListenAddress, "listen", f.ListenAddress, "address to listen on in http mode")
	flags.StringVar(&f.Mode, "mode", f.Mode, "transport: stdio or http")
	flags.StringVar(&f.LogLevel, "log-level", f.LogLevel, "log level: debug, info, warning, error")
	flags.IntVar(&f.Workers, "workers", f.Workers, "independent passes to run concurrently per call")
}

func (f *MCPFlags) ToOptions() (*MCPOptions, error) {
	if f.Mode != "stdio" && f.Mode != "http" {
		return nil, errors.Errorf("unsupported mode %q, want stdio or http", f.Mode)
	}
	level, err := log.ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	return &MCPOptions{
		ListenAddress: f.ListenAddress,
		Mode:          f.Mode,
		Level:         level,
		Workers:       f.Workers,
	}, nil
}

func NewMCPCommand() *cobra.Command {
	f := NewMCPFlags()

	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the autodiff tools over MCP",
		Long: `Serve the autodiff tools (differentiate, gradient, evaluate, parse, to_latex,
free_symbols, graph, functions) to LLM agents.

The server can run in two modes:
- stdio: communicates via standard input/output
- http: serves the MCP streamable HTTP transport on /mcp, plus plain JSON
  endpoints /tool and /schema, /health and /metrics`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := f.ToOptions()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := f.ToOptions()
			if err != nil {
				return errors.WithMessage(err, "error converting to options")
			}
			if err := o.Run(); err != nil {
				return errors.WithMessage(err, "error running MCP server")
			}
			return nil
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}

func main() {
	// stdout carries the stdio transport; logs always go to stderr.
	log.SetOutput(os.Stderr)
	if err := NewMCPCommand().Execute(); err != nil {
		log.WithError(err).Error("mcp-server failed")
		os.Exit(1)
	}
}
