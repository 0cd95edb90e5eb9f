package bootstrap

import (
	"os/exec"
	"strings"
	"testing"
)

func withFakePath(t *testing.T, present ...string) {
	t.Helper()
	orig := lookPath
	lookPath = func(name string) (string, error) {
		for _, p := range present {
			if p == name {
				return "/bin/" + name, nil
			}
		}
		return "", exec.ErrNotFound
	}
	t.Cleanup(func() { lookPath = orig })
}

func TestBuildCommands_ScopeValidation(t *testing.T) {
	_, err := BuildCommands(Options{ConfigPath: "/tmp/cfg.yaml", Scope: "bad", All: true, ServerName: "engram"})
	if err == nil {
		t.Fatal("expected invalid scope error")
	}
}

func TestBuildCommands_AllCLIsPresent(t *testing.T) {
	withFakePath(t, "codex", "claude", "gemini")

	cmds, err := BuildCommands(Options{
		ConfigPath: "/tmp/cfg.yaml",
		Scope:      "user",
		ServerName: "engram",
		ServeCmd:   "engram-mcp serve",
		All:        true,
	})
	if err != nil {
		t.Fatalf("BuildCommands() error = %v", err)
	}
	if len(cmds) != 6 {
		t.Fatalf("expected 6 commands (remove+add per CLI), got %d", len(cmds))
	}
	if cmds[0].Name != "codex" || cmds[2].Name != "claude" || cmds[4].Name != "gemini" {
		t.Fatalf("unexpected CLI ordering: %v %v %v", cmds[0].Name, cmds[2].Name, cmds[4].Name)
	}
	add := cmds[1].String()
	if !strings.Contains(add, "mcp add engram -- engram-mcp serve --config /tmp/cfg.yaml") {
		t.Fatalf("unexpected codex add command: %q", add)
	}
	if !strings.Contains(cmds[3].String(), "-s user") {
		t.Fatalf("claude commands should carry the scope flag: %q", cmds[3].String())
	}
}

func TestBuildCommands_SkipsMissingAndUnselected(t *testing.T) {
	withFakePath(t, "claude")

	cmds, err := BuildCommands(Options{
		ConfigPath: "/tmp/cfg.yaml",
		Scope:      "project",
		ServerName: "engram",
		Claude:     true,
		Gemini:     true,
	})
	if err != nil {
		t.Fatalf("BuildCommands() error = %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands for the one present CLI, got %d", len(cmds))
	}
	for _, c := range cmds {
		if c.Name != "claude" {
			t.Fatalf("unexpected CLI %q", c.Name)
		}
	}
}
