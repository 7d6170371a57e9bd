package lsp

import (
	"encoding/json"
	"net/url"
	"path/filepath"
)

// Position represents a position in a text document (LSP spec)
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range represents a range in a text document (LSP spec)
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location represents a location inside a resource (LSP spec)
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// TextDocumentIdentifier identifies a text document
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// VersionedTextDocumentIdentifier carries the document version
type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

// TextDocumentItem is sent in didOpen
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// TextDocumentPositionParams is used for requests like definition and references
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type DidOpenParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type ContentChange struct {
	Text string `json:"text"`
}

type DidChangeParams struct {
	TextDocument   VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []ContentChange                 `json:"contentChanges"`
}

type DidCloseParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// ReferenceContext is used for textDocument/references
type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

type ReferenceParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
	Context      ReferenceContext       `json:"context"`
}

// Completion trigger kinds (LSP spec)
const (
	TriggerInvoked   = 1
	TriggerCharacter = 2
)

type CompletionContext struct {
	TriggerKind      int    `json:"triggerKind"`
	TriggerCharacter string `json:"triggerCharacter,omitempty"`
}

type CompletionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
	Context      *CompletionContext     `json:"context,omitempty"`
}

// CompletionItem is the subset of the LSP completion item medit consumes.
type CompletionItem struct {
	Label      string `json:"label"`
	Kind       int    `json:"kind,omitempty"`
	Detail     string `json:"detail,omitempty"`
	InsertText string `json:"insertText,omitempty"`
	SortText   string `json:"sortText,omitempty"`
}

// Text returns the text inserted when the item is accepted.
func (c CompletionItem) Text() string {
	if c.InsertText != "" {
		return c.InsertText
	}
	return c.Label
}

// Diagnostic severities (LSP spec)
const (
	SeverityError   = 1
	SeverityWarning = 2
	SeverityInfo    = 3
	SeverityHint    = 4
)

type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity,omitempty"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message"`
}

// PublishDiagnosticsParams is the payload of textDocument/publishDiagnostics.
type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Version     *int         `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

type initializeParams struct {
	ProcessID    int               `json:"processId"`
	RootURI      string            `json:"rootUri"`
	Capabilities map[string]any    `json:"capabilities"`
	ClientInfo   map[string]string `json:"clientInfo"`
}

// decodeLocations accepts the three shapes servers return for
// definition/references: Location, []Location, or []LocationLink.
func decodeLocations(result json.RawMessage) []Location {
	if len(result) == 0 || string(result) == "null" {
		return nil
	}

	var locs []Location
	if err := json.Unmarshal(result, &locs); err == nil && len(locs) > 0 && locs[0].URI != "" {
		return locs
	}

	var loc Location
	if err := json.Unmarshal(result, &loc); err == nil && loc.URI != "" {
		return []Location{loc}
	}

	var links []struct {
		TargetURI            string `json:"targetUri"`
		TargetRange          Range  `json:"targetRange"`
		TargetSelectionRange Range  `json:"targetSelectionRange"`
	}
	if err := json.Unmarshal(result, &links); err == nil && len(links) > 0 {
		out := make([]Location, len(links))
		for i, link := range links {
			out[i] = Location{URI: link.TargetURI, Range: link.TargetSelectionRange}
		}
		return out
	}

	return nil
}

// decodeCompletion accepts either a bare item array or a CompletionList.
func decodeCompletion(result json.RawMessage) []CompletionItem {
	if len(result) == 0 || string(result) == "null" {
		return nil
	}

	var items []CompletionItem
	if err := json.Unmarshal(result, &items); err == nil {
		return items
	}

	var list struct {
		IsIncomplete bool             `json:"isIncomplete"`
		Items        []CompletionItem `json:"items"`
	}
	if err := json.Unmarshal(result, &list); err == nil {
		return list.Items
	}
	return nil
}

// FileURI converts a filesystem path to a file:// URI.
func FileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

// URIToPath converts a file:// URI to a filesystem path
func URIToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	if u.Scheme != "file" {
		return uri
	}
	return filepath.FromSlash(u.Path)
}
