package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type EditorOptions struct {
	ShowLineNumbers      bool   `toml:"show-line-numbers"`
	CurrentLineHighlight bool   `toml:"current-line-highlight"`
	Theme                string `toml:"theme"`
	TabWidth             int    `toml:"tab-width"`

	// DidChange coalescing window in milliseconds.
	DebounceMs int `toml:"debounce-ms"`
	// Ceiling for any outstanding LSP request, in milliseconds.
	RequestTimeoutMs int `toml:"request-timeout-ms"`
	// A language is disabled after RestartLimit crashes inside
	// RestartWindowMs milliseconds.
	RestartLimit    int `toml:"restart-limit"`
	RestartWindowMs int `toml:"restart-window-ms"`
}

type Keybindings struct {
	Quit            string `toml:"quit"`
	QuitAlt         string `toml:"quit-alt"`
	Save            string `toml:"save"`
	GotoDefinition  string `toml:"goto-definition"`
	FindReferences  string `toml:"find-references"`
	NavigateBack    string `toml:"navigate-back"`
	NavigateForward string `toml:"navigate-forward"`
	Search          string `toml:"search"`
	Undo            string `toml:"undo"`
	Redo            string `toml:"redo"`
	GotoLine        string `toml:"goto-line"`
	Query           string `toml:"query"`
	LineNumbers     string `toml:"toggle-line-numbers"`
}

// Server describes one language server and which of its features medit
// is allowed to use. A language that has no Server entry never gets a
// session.
type Server struct {
	Command            string   `toml:"command"`
	Args               []string `toml:"args"`
	EnableCompletion   bool     `toml:"enable-completion"`
	EnableDiagnostics  bool     `toml:"enable-diagnostics"`
	EnableGotoDef      bool     `toml:"enable-goto-definition"`
	TriggerCharacters  []string `toml:"trigger-characters"`
	IncludeDeclaration bool     `toml:"include-declaration"`
}

type LSP struct {
	Servers map[string]Server `toml:"servers"`
}

type Query struct {
	// External filter command run by the query dialog. The buffer is
	// written to its stdin, the query string is appended to Args.
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

type Config struct {
	Editor EditorOptions `toml:"editor"`
	Keymap Keybindings   `toml:"keymap"`
	LSP    LSP           `toml:"lsp"`
	Query  Query         `toml:"query"`
}

func Default() Config {
	return Config{
		Editor: EditorOptions{
			ShowLineNumbers:      true,
			CurrentLineHighlight: true,
			Theme:                "base16-snazzy",
			TabWidth:             4,
			DebounceMs:           75,
			RequestTimeoutMs:     5000,
			RestartLimit:         3,
			RestartWindowMs:      10000,
		},
		Keymap: Keybindings{
			Quit:            "ctrl+q",
			QuitAlt:         "esc",
			Save:            "ctrl+s",
			GotoDefinition:  "ctrl+d",
			FindReferences:  "ctrl+r",
			NavigateBack:    "ctrl+b",
			NavigateForward: "ctrl+f",
			Search:          "ctrl+w",
			Undo:            "ctrl+z",
			Redo:            "ctrl+y",
			GotoLine:        "ctrl+g",
			Query:           "ctrl+e",
			LineNumbers:     "ctrl+l",
		},
		LSP: LSP{
			Servers: map[string]Server{
				"markdown": {
					Command:           "markdown-lsp",
					EnableCompletion:  true,
					EnableDiagnostics: true,
					EnableGotoDef:     true,
					TriggerCharacters: []string{"#", "[", "!", "`", "-"},
				},
				"rust": {
					Command:           "rust-analyzer",
					EnableCompletion:  true,
					EnableDiagnostics: true,
					EnableGotoDef:     true,
				},
				"python": {
					Command:           "pyright-langserver",
					Args:              []string{"--stdio"},
					EnableCompletion:  true,
					EnableDiagnostics: true,
					EnableGotoDef:     true,
				},
				"go": {
					Command:           "gopls",
					EnableCompletion:  true,
					EnableDiagnostics: true,
					EnableGotoDef:     true,
				},
			},
		},
		Query: Query{
			Command: "mq",
		},
	}
}

func Load() (Config, error) {
	cfg := Default()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	var userCfg Config
	md, err := toml.Decode(string(data), &userCfg)
	if err != nil {
		return cfg, err
	}
	merge(&cfg, userCfg, md)
	return cfg, nil
}

// merge overlays the user's settings on the defaults. Zero values mean
// "keep the default"; the boolean options consult the decode metadata
// because false is a meaningful override; server entries replace
// defaults wholesale per language.
func merge(dst *Config, src Config, md toml.MetaData) {
	if md.IsDefined("editor", "show-line-numbers") {
		dst.Editor.ShowLineNumbers = src.Editor.ShowLineNumbers
	}
	if md.IsDefined("editor", "current-line-highlight") {
		dst.Editor.CurrentLineHighlight = src.Editor.CurrentLineHighlight
	}
	if src.Editor.Theme != "" {
		dst.Editor.Theme = src.Editor.Theme
	}
	if src.Editor.TabWidth > 0 {
		dst.Editor.TabWidth = src.Editor.TabWidth
	}
	if src.Editor.DebounceMs > 0 {
		dst.Editor.DebounceMs = src.Editor.DebounceMs
	}
	if src.Editor.RequestTimeoutMs > 0 {
		dst.Editor.RequestTimeoutMs = src.Editor.RequestTimeoutMs
	}
	if src.Editor.RestartLimit > 0 {
		dst.Editor.RestartLimit = src.Editor.RestartLimit
	}
	if src.Editor.RestartWindowMs > 0 {
		dst.Editor.RestartWindowMs = src.Editor.RestartWindowMs
	}

	mergeKey(&dst.Keymap.Quit, src.Keymap.Quit)
	mergeKey(&dst.Keymap.QuitAlt, src.Keymap.QuitAlt)
	mergeKey(&dst.Keymap.Save, src.Keymap.Save)
	mergeKey(&dst.Keymap.GotoDefinition, src.Keymap.GotoDefinition)
	mergeKey(&dst.Keymap.FindReferences, src.Keymap.FindReferences)
	mergeKey(&dst.Keymap.NavigateBack, src.Keymap.NavigateBack)
	mergeKey(&dst.Keymap.NavigateForward, src.Keymap.NavigateForward)
	mergeKey(&dst.Keymap.Search, src.Keymap.Search)
	mergeKey(&dst.Keymap.Undo, src.Keymap.Undo)
	mergeKey(&dst.Keymap.Redo, src.Keymap.Redo)
	mergeKey(&dst.Keymap.GotoLine, src.Keymap.GotoLine)
	mergeKey(&dst.Keymap.Query, src.Keymap.Query)
	mergeKey(&dst.Keymap.LineNumbers, src.Keymap.LineNumbers)

	if src.LSP.Servers != nil {
		for lang, srv := range src.LSP.Servers {
			dst.LSP.Servers[lang] = srv
		}
	}
	if src.Query.Command != "" {
		dst.Query = src.Query
	}
}

func mergeKey(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// Save writes cfg to path in TOML form.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func ConfigDir() (string, error) {
	if v := os.Getenv("MEDIT_CONFIG_HOME"); v != "" {
		return filepath.Join(v), nil
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "medit"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "medit"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}
