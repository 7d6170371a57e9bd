package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Keymap.Save != "ctrl+s" {
		t.Fatalf("save key = %q, want %q", cfg.Keymap.Save, "ctrl+s")
	}
	if cfg.Keymap.Quit != "ctrl+q" || cfg.Keymap.QuitAlt != "esc" {
		t.Fatalf("quit keys = %q/%q", cfg.Keymap.Quit, cfg.Keymap.QuitAlt)
	}
	md, ok := cfg.LSP.Servers["markdown"]
	if !ok {
		t.Fatalf("no markdown server in defaults")
	}
	if !md.EnableCompletion || !md.EnableDiagnostics || !md.EnableGotoDef {
		t.Fatalf("markdown feature flags = %+v", md)
	}
	want := []string{"#", "[", "!", "`", "-"}
	if len(md.TriggerCharacters) != len(want) {
		t.Fatalf("trigger chars = %v, want %v", md.TriggerCharacters, want)
	}
	for i, c := range want {
		if md.TriggerCharacters[i] != c {
			t.Fatalf("trigger char %d = %q, want %q", i, md.TriggerCharacters[i], c)
		}
	}
	if cfg.Editor.DebounceMs <= 0 || cfg.Editor.RestartLimit <= 0 {
		t.Fatalf("tunables not set: %+v", cfg.Editor)
	}
}

func TestLoadMergesUserConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEDIT_CONFIG_HOME", dir)

	userToml := `
[editor]
theme = "monokai"
debounce-ms = 120

[keymap]
save = "ctrl+o"

[lsp.servers.toy]
command = "toy-lsp"
args = ["--stdio"]
enable-completion = true
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(userToml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Editor.Theme != "monokai" {
		t.Fatalf("theme = %q, want monokai", cfg.Editor.Theme)
	}
	if cfg.Editor.DebounceMs != 120 {
		t.Fatalf("debounce = %d, want 120", cfg.Editor.DebounceMs)
	}
	if cfg.Keymap.Save != "ctrl+o" {
		t.Fatalf("save key = %q, want ctrl+o", cfg.Keymap.Save)
	}
	// untouched keys keep defaults
	if cfg.Keymap.Quit != "ctrl+q" {
		t.Fatalf("quit key = %q, want default", cfg.Keymap.Quit)
	}
	toy, ok := cfg.LSP.Servers["toy"]
	if !ok {
		t.Fatalf("toy server not merged")
	}
	if toy.Command != "toy-lsp" || !toy.EnableCompletion || toy.EnableDiagnostics {
		t.Fatalf("toy server = %+v", toy)
	}
	// defaults survive alongside user servers
	if _, ok := cfg.LSP.Servers["markdown"]; !ok {
		t.Fatalf("markdown default lost on merge")
	}
}

func TestLoadFalseBooleansOverrideDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEDIT_CONFIG_HOME", dir)

	userToml := `
[editor]
show-line-numbers = false
current-line-highlight = false
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(userToml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Editor.ShowLineNumbers {
		t.Error("show-line-numbers = false not honored")
	}
	if cfg.Editor.CurrentLineHighlight {
		t.Error("current-line-highlight = false not honored")
	}
	// Unmentioned booleans keep their defaults.
	t.Setenv("MEDIT_CONFIG_HOME", t.TempDir())
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Editor.ShowLineNumbers || !cfg.Editor.CurrentLineHighlight {
		t.Error("defaults lost without user overrides")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("MEDIT_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Editor.Theme != Default().Editor.Theme {
		t.Fatalf("theme = %q, want default", cfg.Editor.Theme)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.toml")
	if err := Save(Default(), path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	t.Setenv("MEDIT_CONFIG_HOME", filepath.Dir(path))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Keymap.GotoDefinition != "ctrl+d" {
		t.Fatalf("goto-definition = %q after round trip", cfg.Keymap.GotoDefinition)
	}
}
