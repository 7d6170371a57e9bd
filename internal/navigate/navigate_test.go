package navigate

import (
	"context"
	"errors"
	"testing"

	"github.com/rkovacs/medit/internal/lsp"
)

func TestHistoryRoundTrip(t *testing.T) {
	h := NewHistory(10)
	a := Jump{Path: "/a.md", Line: 1}
	b := Jump{Path: "/b.md", Line: 5}
	c := Jump{Path: "/c.md", Line: 9}

	h.Push(a) // jumped a -> b
	h.Push(b) // jumped b -> c; now at c

	got, ok := h.Back(c)
	if !ok || got != b {
		t.Fatalf("Back() = %+v, %v, want %+v", got, ok, b)
	}
	got, ok = h.Back(b)
	if !ok || got != a {
		t.Fatalf("Back() = %+v, %v, want %+v", got, ok, a)
	}
	if _, ok := h.Back(a); ok {
		t.Fatal("Back() on empty stack succeeded")
	}

	got, ok = h.Forward(a)
	if !ok || got != b {
		t.Fatalf("Forward() = %+v, %v, want %+v", got, ok, b)
	}
	got, ok = h.Forward(b)
	if !ok || got != c {
		t.Fatalf("Forward() = %+v, %v, want %+v", got, ok, c)
	}
	if _, ok := h.Forward(c); ok {
		t.Fatal("Forward() past the newest entry succeeded")
	}
}

func TestHistoryPushClearsForward(t *testing.T) {
	h := NewHistory(10)
	h.Push(Jump{Path: "/a.md"})
	h.Back(Jump{Path: "/b.md"})
	if h.ForwardDepth() != 1 {
		t.Fatalf("ForwardDepth() = %d, want 1", h.ForwardDepth())
	}
	h.Push(Jump{Path: "/a.md"})
	if h.ForwardDepth() != 0 {
		t.Errorf("ForwardDepth() = %d after fresh jump, want 0", h.ForwardDepth())
	}
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 10; i++ {
		h.Push(Jump{Line: i})
	}
	if h.BackDepth() != 3 {
		t.Fatalf("BackDepth() = %d, want 3", h.BackDepth())
	}
	j, _ := h.Back(Jump{})
	if j.Line != 9 {
		t.Errorf("newest entry Line = %d, want 9", j.Line)
	}
}

type fakeClient struct {
	defs  []lsp.Location
	refs  []lsp.Location
	err   error
	calls int
}

func (f *fakeClient) Definition(ctx context.Context, path string, pos lsp.Position) ([]lsp.Location, error) {
	f.calls++
	return f.defs, f.err
}

func (f *fakeClient) References(ctx context.Context, path string, pos lsp.Position) ([]lsp.Location, error) {
	f.calls++
	return f.refs, f.err
}

type fakeOpener struct {
	current Jump
	opened  []Jump
	fail    bool
}

func (f *fakeOpener) CurrentLocation() Jump { return f.current }

func (f *fakeOpener) OpenLocation(path string, line, col int) error {
	if f.fail {
		return errors.New("open failed")
	}
	f.current = Jump{Path: path, Line: line, Col: col}
	f.opened = append(f.opened, f.current)
	return nil
}

func loc(path string, line int) lsp.Location {
	return lsp.Location{
		URI:   lsp.FileURI(path),
		Range: lsp.Range{Start: lsp.Position{Line: line}},
	}
}

func newTestEngine(client FeatureClient, opener Opener) *Engine {
	return NewEngine(func(string) (FeatureClient, error) { return client, nil }, opener, 10)
}

func TestGotoDefinitionJumpsAndRecordsOrigin(t *testing.T) {
	client := &fakeClient{defs: []lsp.Location{loc("/other.md", 12)}}
	opener := &fakeOpener{current: Jump{Path: "/a.md", Line: 3}}
	e := newTestEngine(client, opener)

	if err := e.GotoDefinition(context.Background(), "markdown", "/a.md", lsp.Position{Line: 3}); err != nil {
		t.Fatalf("GotoDefinition() error = %v", err)
	}
	if opener.current.Path != "/other.md" || opener.current.Line != 12 {
		t.Fatalf("landed at %+v, want /other.md:12", opener.current)
	}

	if !e.Back() {
		t.Fatal("Back() = false after a jump")
	}
	if opener.current != (Jump{Path: "/a.md", Line: 3}) {
		t.Fatalf("Back() landed at %+v, want the origin", opener.current)
	}
	if !e.Forward() {
		t.Fatal("Forward() = false after Back()")
	}
	if opener.current.Path != "/other.md" {
		t.Fatalf("Forward() landed at %+v, want the definition", opener.current)
	}
}

func TestGotoDefinitionNoLocations(t *testing.T) {
	client := &fakeClient{}
	opener := &fakeOpener{current: Jump{Path: "/a.md"}}
	e := newTestEngine(client, opener)

	err := e.GotoDefinition(context.Background(), "markdown", "/a.md", lsp.Position{})
	if !errors.Is(err, ErrNoLocations) {
		t.Fatalf("GotoDefinition() error = %v, want ErrNoLocations", err)
	}
	if e.History().BackDepth() != 0 {
		t.Error("failed jump still pushed onto history")
	}
}

func TestGotoDefinitionOpenFailureKeepsHistory(t *testing.T) {
	client := &fakeClient{defs: []lsp.Location{loc("/gone.md", 1)}}
	opener := &fakeOpener{fail: true}
	e := newTestEngine(client, opener)

	if err := e.GotoDefinition(context.Background(), "markdown", "/a.md", lsp.Position{}); err == nil {
		t.Fatal("GotoDefinition() succeeded despite open failure")
	}
	if e.History().BackDepth() != 0 {
		t.Error("history recorded a jump that never happened")
	}
}

func TestReferencesDoNotTouchHistory(t *testing.T) {
	client := &fakeClient{refs: []lsp.Location{loc("/a.md", 1), loc("/b.md", 2)}}
	e := newTestEngine(client, &fakeOpener{})

	locs, err := e.References(context.Background(), "markdown", "/a.md", lsp.Position{})
	if err != nil {
		t.Fatalf("References() error = %v", err)
	}
	if len(locs) != 2 {
		t.Fatalf("len(locs) = %d, want 2", len(locs))
	}
	if e.History().BackDepth() != 0 {
		t.Error("References() pushed onto the jump history")
	}
}

func TestEngineSessionError(t *testing.T) {
	wantErr := lsp.ErrServerDisabled
	e := NewEngine(func(string) (FeatureClient, error) { return nil, wantErr }, &fakeOpener{}, 10)
	if err := e.GotoDefinition(context.Background(), "markdown", "/a.md", lsp.Position{}); !errors.Is(err, wantErr) {
		t.Fatalf("GotoDefinition() error = %v, want %v", err, wantErr)
	}
}
