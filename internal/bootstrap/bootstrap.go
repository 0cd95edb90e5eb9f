// Package bootstrap registers the engram MCP server with whichever agent
// CLIs are installed (codex, claude, gemini), writing an audit log of every
// command it runs.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var lookPath = exec.LookPath

// Options control CLI bootstrap behavior.
type Options struct {
	ConfigPath string
	Scope      string
	ServerName string
	ServeCmd   string
	All        bool
	Codex      bool
	Claude     bool
	Gemini     bool
	DryRun     bool
}

// Command captures an executable command.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner executes system commands.
type Runner interface {
	Run(name string, args ...string) error
}

// OSRunner executes commands via os/exec.
type OSRunner struct{}

func (OSRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// cliTarget describes how one agent CLI registers MCP servers. The three
// CLIs share a "mcp remove / mcp add" shape but differ in scope flags and
// whether the serve command needs a -- separator.
type cliTarget struct {
	binary    string
	scoped    bool
	separator bool
	selected  func(Options) bool
}

var cliTargets = []cliTarget{
	{binary: "codex", separator: true, selected: func(o Options) bool { return o.All || o.Codex }},
	{binary: "claude", scoped: true, separator: true, selected: func(o Options) bool { return o.All || o.Claude }},
	{binary: "gemini", scoped: true, selected: func(o Options) bool { return o.All || o.Gemini }},
}

func (t cliTarget) commands(opts Options, serveCmd []string) []Command {
	remove := []string{"mcp", "remove"}
	add := []string{"mcp", "add"}
	if t.scoped {
		remove = append(remove, "-s", opts.Scope)
		add = append(add, "-s", opts.Scope)
	}
	remove = append(remove, opts.ServerName)
	add = append(add, opts.ServerName)
	if t.separator {
		add = append(add, "--")
	}
	add = append(add, serveCmd...)
	return []Command{
		{Name: t.binary, Args: remove},
		{Name: t.binary, Args: add},
	}
}

// Bootstrap configures MCP servers for installed agent CLIs.
func Bootstrap(logger *log.Logger, opts Options, runner Runner) error {
	if runner == nil {
		runner = OSRunner{}
	}
	opts = withDefaults(opts)

	cmds, err := BuildCommands(opts)
	if err != nil {
		return err
	}
	if len(cmds) == 0 {
		return errors.New("no bootstrap commands generated")
	}

	auditPath, err := writeAudit(cmds)
	if err != nil {
		return err
	}

	for _, c := range cmds {
		logger.Info("bootstrap command", "cmd", c.String(), "dry_run", opts.DryRun)
		if opts.DryRun {
			continue
		}
		if err := runner.Run(c.Name, c.Args...); err != nil {
			// remove fails when the server was never registered; that is fine.
			if strings.Contains(c.String(), " mcp remove ") {
				logger.Debug("ignoring remove error", "cmd", c.String(), "error", err)
				continue
			}
			return fmt.Errorf("run %q: %w", c.String(), err)
		}
	}

	logger.Info("bootstrap complete", "audit_log", auditPath)
	return nil
}

func withDefaults(opts Options) Options {
	if opts.Scope == "" {
		opts.Scope = "user"
	}
	if opts.ServerName == "" {
		opts.ServerName = "engram"
	}
	if strings.TrimSpace(opts.ServeCmd) == "" {
		opts.ServeCmd = "engram-mcp serve"
	}
	if !opts.All && !opts.Codex && !opts.Claude && !opts.Gemini {
		opts.All = true
	}
	return opts
}

// BuildCommands builds a deterministic bootstrap command list, covering only
// the selected CLIs that are actually on PATH.
func BuildCommands(opts Options) ([]Command, error) {
	if opts.Scope != "user" && opts.Scope != "project" {
		return nil, fmt.Errorf("invalid scope %q (expected user or project)", opts.Scope)
	}
	if strings.TrimSpace(opts.ConfigPath) == "" {
		return nil, errors.New("config path is required")
	}
	if strings.TrimSpace(opts.ServeCmd) == "" {
		opts.ServeCmd = "engram-mcp serve"
	}

	serveCmd := strings.Fields(opts.ServeCmd)
	if len(serveCmd) == 0 {
		return nil, errors.New("serve command is required")
	}
	serveCmd = append(serveCmd, "--config", opts.ConfigPath)

	var cmds []Command
	for _, target := range cliTargets {
		if !target.selected(opts) || !commandExists(target.binary) {
			continue
		}
		cmds = append(cmds, target.commands(opts, serveCmd)...)
	}
	return cmds, nil
}

func commandExists(name string) bool {
	_, err := lookPath(name)
	return err == nil
}

func writeAudit(cmds []Command) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(home, ".engram-mcp", "bootstrap-last.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fmt.Fprintf(f, "# engram-mcp bootstrap %s\n", time.Now().UTC().Format(time.RFC3339))
	for _, c := range cmds {
		fmt.Fprintln(f, c.String())
	}
	return path, nil
}
