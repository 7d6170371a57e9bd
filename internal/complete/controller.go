// Package complete issues completion requests off the UI loop and
// filters the results into a popup-ready list.
package complete

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/rkovacs/medit/internal/document"
	"github.com/rkovacs/medit/internal/lsp"
)

// Completer is the slice of a server session the controller needs.
// *lsp.Session satisfies it.
type Completer interface {
	Completion(ctx context.Context, path string, pos lsp.Position, trigger string) ([]lsp.CompletionItem, error)
}

// Result is a finished completion request. Version is the document sync
// version the request was issued against; the consumer drops results
// whose version no longer matches the buffer.
type Result struct {
	Version  int
	Row      int
	StartCol int
	Items    []lsp.CompletionItem
	Err      error
}

// Controller runs at most one interesting completion request at a time.
// A newer request supersedes any in-flight one; the superseded result is
// discarded when it eventually lands.
type Controller struct {
	seq     atomic.Int64
	results chan Result
}

func NewController() *Controller {
	return &Controller{results: make(chan Result, 4)}
}

// Results delivers finished requests for the UI loop to drain.
func (c *Controller) Results() <-chan Result { return c.results }

// Request starts an asynchronous completion request. startCol is the
// word start the eventual insert will replace from; trigger is the
// character that fired it, empty for manual invocation.
func (c *Controller) Request(ctx context.Context, client Completer, path string, row, col, startCol, version int, trigger string) {
	id := c.seq.Add(1)
	go func() {
		items, err := client.Completion(ctx, path, lsp.Position{Line: row, Character: col}, trigger)
		if c.seq.Load() != id {
			return // superseded
		}
		res := Result{Version: version, Row: row, StartCol: startCol, Items: items, Err: err}
		select {
		case c.results <- res:
		default:
		}
	}()
}

// Cancel discards any in-flight request.
func (c *Controller) Cancel() {
	c.seq.Add(1)
}

// IsTrigger reports whether r is one of the configured trigger
// characters.
func IsTrigger(triggers []string, r rune) bool {
	for _, t := range triggers {
		if t == string(r) {
			return true
		}
	}
	return false
}

// Filter dedupes by insert text, drops items that do not extend the
// typed prefix, and orders by sortText falling back to label.
func Filter(items []lsp.CompletionItem, prefix string) []lsp.CompletionItem {
	seen := make(map[string]bool, len(items))
	out := make([]lsp.CompletionItem, 0, len(items))
	lower := strings.ToLower(prefix)
	for _, it := range items {
		text := it.Text()
		if text == "" || seen[text] {
			continue
		}
		if lower != "" &&
			!strings.HasPrefix(strings.ToLower(text), lower) &&
			!strings.HasPrefix(strings.ToLower(it.Label), lower) {
			continue
		}
		seen[text] = true
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return sortKey(out[i]) < sortKey(out[j])
	})
	return out
}

func sortKey(it lsp.CompletionItem) string {
	if it.SortText != "" {
		return it.SortText
	}
	return it.Label
}

// Apply replaces the typed prefix with the accepted item's insert text.
// The replacement is one undo group, so a single undo removes it.
func Apply(doc *document.Document, startCol int, item lsp.CompletionItem) {
	cur := doc.Cursor()
	doc.ReplaceRange(document.Cursor{Row: cur.Row, Col: startCol}, cur, item.Text())
}
