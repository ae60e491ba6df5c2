// Package toolserver exposes the pentest toolset to external planners over
// the Model Context Protocol.
package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hairizuanbinnoorazman/web-pentest/browser"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
	"github.com/hairizuanbinnoorazman/web-pentest/toolset"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const instructions = `Browser tools bound to a single target page.
Every tool takes one string argument named "query":
scrape_page takes "scrape", input_textbox takes "selector,text",
click_button takes a CSS selector, sql_injection_test takes
"username_selector,password_selector" and xss_test takes the CSS selector of an input.`

// Caller runs a tool by name. *toolset.Toolset satisfies it.
type Caller interface {
	Call(ctx context.Context, name, input string) toolset.Result
}

// Server wraps an MCP server whose tools are backed by a Caller.
type Server struct {
	mcp    *mcp.Server
	tools  Caller
	logger logger.Logger
}

// New registers the toolset's definitions on a new MCP server.
func New(tools Caller, version string, log logger.Logger) (*Server, error) {
	s := &Server{
		tools:  tools,
		logger: log,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "web-pentest",
			Title:   "Web Pentest Tools",
			Version: version,
		},
		&mcp.ServerOptions{
			Instructions: instructions,
		},
	)

	for _, def := range toolset.Definitions() {
		var schema map[string]any
		if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid input schema for %s: %w", def.Name, err)
		}
		s.mcp.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		}, s.handler(def.Name))
	}
	return s, nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input := toolset.QueryFromArguments(req.Params.Arguments)
		start := time.Now()
		res := s.tools.Call(ctx, name, input)
		s.logger.Info(ctx, "tool call served", logger.Fields{
			"tool":        name,
			"ok":          res.OK,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Message}},
			IsError: !res.OK,
		}, nil
	}
}

// RunStdio serves until the client disconnects or ctx is cancelled.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Options configures Serve.
type Options struct {
	TargetURL string
	Version   string
	Browser   browser.Config
	Toolset   toolset.Config
}

// Serve opens one browser session on the target and serves the tools over
// stdio for the lifetime of the process. Findings recorded by the tools are
// logged on exit.
func Serve(ctx context.Context, opts Options, log logger.Logger) error {
	run, err := testrun.New(opts.TargetURL)
	if err != nil {
		return err
	}
	if err := run.Start(); err != nil {
		return err
	}

	sess := browser.NewSession(opts.TargetURL, opts.Browser, log)
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn(ctx, "failed to close browser session", logger.Fields{"error": err.Error()})
		}
	}()

	srv, err := New(toolset.New(sess, run, opts.Toolset, log), opts.Version, log)
	if err != nil {
		return err
	}

	log.Info(ctx, "serving pentest tools over stdio", logger.Fields{
		"target_url": opts.TargetURL,
	})
	serveErr := srv.RunStdio(ctx)

	findings := run.FindingsSnapshot()
	for _, f := range findings {
		log.Info(ctx, "finding recorded", logger.Fields{
			"severity": string(f.Severity),
			"title":    f.Title,
		})
	}
	log.Info(ctx, "tool server stopped", logger.Fields{
		"vulnerability_count": len(findings),
	})
	return serveErr
}
