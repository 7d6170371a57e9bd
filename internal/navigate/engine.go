package navigate

import (
	"context"
	"errors"

	"github.com/rkovacs/medit/internal/lsp"
)

// ErrNoLocations means the server answered but had nowhere to go.
var ErrNoLocations = errors.New("no locations")

// FeatureClient is the slice of a server session the engine needs.
// *lsp.Session satisfies it.
type FeatureClient interface {
	Definition(ctx context.Context, path string, pos lsp.Position) ([]lsp.Location, error)
	References(ctx context.Context, path string, pos lsp.Position) ([]lsp.Location, error)
}

// SessionSource resolves a language to its running session.
type SessionSource func(languageID string) (FeatureClient, error)

// Opener is how the engine lands somewhere: the editor switches buffers
// when the path differs, announcing the new document to its server.
type Opener interface {
	CurrentLocation() Jump
	OpenLocation(path string, line, col int) error
}

// Engine drives go-to-definition and find-references on top of the jump
// history.
type Engine struct {
	source  SessionSource
	history *History
	opener  Opener
}

func NewEngine(source SessionSource, opener Opener, historyLimit int) *Engine {
	return &Engine{
		source:  source,
		history: NewHistory(historyLimit),
		opener:  opener,
	}
}

func (e *Engine) History() *History { return e.history }

// GotoDefinition jumps to the first definition of the symbol at pos.
// The origin is pushed onto the history only when the jump succeeds.
func (e *Engine) GotoDefinition(ctx context.Context, languageID, path string, pos lsp.Position) error {
	client, err := e.source(languageID)
	if err != nil {
		return err
	}
	locs, err := client.Definition(ctx, path, pos)
	if err != nil {
		return err
	}
	if len(locs) == 0 {
		return ErrNoLocations
	}

	origin := e.opener.CurrentLocation()
	target := locs[0]
	if err := e.opener.OpenLocation(lsp.URIToPath(target.URI), target.Range.Start.Line, target.Range.Start.Character); err != nil {
		return err
	}
	e.history.Push(origin)
	return nil
}

// References returns every reference to the symbol at pos for the caller
// to present. It never touches the jump history; only committed jumps do.
func (e *Engine) References(ctx context.Context, languageID, path string, pos lsp.Position) ([]lsp.Location, error) {
	client, err := e.source(languageID)
	if err != nil {
		return nil, err
	}
	locs, err := client.References(ctx, path, pos)
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return nil, ErrNoLocations
	}
	return locs, nil
}

// JumpTo lands on a picked location (a reference list entry), recording
// the origin like a definition jump.
func (e *Engine) JumpTo(loc lsp.Location) error {
	origin := e.opener.CurrentLocation()
	if err := e.opener.OpenLocation(lsp.URIToPath(loc.URI), loc.Range.Start.Line, loc.Range.Start.Character); err != nil {
		return err
	}
	e.history.Push(origin)
	return nil
}

// Back returns to the previous history entry. No-op on an empty stack.
func (e *Engine) Back() bool {
	j, ok := e.history.Back(e.opener.CurrentLocation())
	if !ok {
		return false
	}
	if err := e.opener.OpenLocation(j.Path, j.Line, j.Col); err != nil {
		return false
	}
	return true
}

// Forward re-applies the most recently undone jump.
func (e *Engine) Forward() bool {
	j, ok := e.history.Forward(e.opener.CurrentLocation())
	if !ok {
		return false
	}
	if err := e.opener.OpenLocation(j.Path, j.Line, j.Col); err != nil {
		return false
	}
	return true
}
