package editor

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/rkovacs/medit/internal/complete"
	"github.com/rkovacs/medit/internal/config"
	"github.com/rkovacs/medit/internal/document"
	"github.com/rkovacs/medit/internal/lsp"
)

func newTestEditor(t *testing.T, content string) *Editor {
	t.Helper()
	cfg := config.Default()
	d := document.New("", []byte(content))
	return New(&cfg, d)
}

func keyEvent(k tcell.Key, r rune) *tcell.EventKey {
	return tcell.NewEventKey(k, r, tcell.ModNone)
}

func ctrlEvent(k tcell.Key) *tcell.EventKey {
	return tcell.NewEventKey(k, rune(k), tcell.ModCtrl)
}

func typeText(e *Editor, text string) {
	for _, r := range text {
		if r == '\n' {
			e.HandleKey(keyEvent(tcell.KeyEnter, 0))
			continue
		}
		e.HandleKey(keyEvent(tcell.KeyRune, r))
	}
}

func newSimScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	s := tcell.NewSimulationScreen("UTF-8")
	if err := s.Init(); err != nil {
		t.Fatalf("screen init: %v", err)
	}
	s.SetSize(80, 24)
	t.Cleanup(s.Fini)
	return s
}

func screenText(s tcell.SimulationScreen) string {
	cells, w, h := s.GetContents()
	var b strings.Builder
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := cells[y*w+x]
			if len(c.Runes) > 0 {
				b.WriteRune(c.Runes[0])
			} else {
				b.WriteRune(' ')
			}
		}
		b.WriteRune('\n')
	}
	return b.String()
}

func TestTypingEditsDocument(t *testing.T) {
	e := newTestEditor(t, "")
	typeText(e, "# Hello\nworld")
	if got := e.Document().Content(); got != "# Hello\nworld" {
		t.Fatalf("Content() = %q, want %q", got, "# Hello\nworld")
	}
}

func TestUndoRedoKeys(t *testing.T) {
	e := newTestEditor(t, "")
	typeText(e, "abc")
	e.HandleKey(ctrlEvent(tcell.KeyCtrlZ))
	if got := e.Document().Content(); got != "ab" {
		t.Fatalf("after undo Content() = %q, want %q", got, "ab")
	}
	e.HandleKey(ctrlEvent(tcell.KeyCtrlY))
	if got := e.Document().Content(); got != "abc" {
		t.Fatalf("after redo Content() = %q, want %q", got, "abc")
	}
}

func TestQuitCleanBuffer(t *testing.T) {
	e := newTestEditor(t, "text")
	if !e.HandleKey(ctrlEvent(tcell.KeyCtrlQ)) {
		t.Fatal("clean buffer did not quit immediately")
	}
}

func TestQuitDirtyBufferAsksFirst(t *testing.T) {
	e := newTestEditor(t, "")
	typeText(e, "unsaved")

	if e.HandleKey(ctrlEvent(tcell.KeyCtrlQ)) {
		t.Fatal("dirty buffer quit without confirmation")
	}
	if e.mode != ModeQuitConfirm {
		t.Fatalf("mode = %v, want ModeQuitConfirm", e.mode)
	}

	// n returns to editing
	if e.HandleKey(keyEvent(tcell.KeyRune, 'n')) {
		t.Fatal("'n' quit anyway")
	}
	if e.mode != ModeEdit {
		t.Fatalf("mode = %v after 'n', want ModeEdit", e.mode)
	}

	e.HandleKey(ctrlEvent(tcell.KeyCtrlQ))
	if !e.HandleKey(keyEvent(tcell.KeyRune, 'y')) {
		t.Fatal("'y' did not quit")
	}
}

func TestQuitDialogSuppressedInPipeMode(t *testing.T) {
	e := newTestEditor(t, "")
	typeText(e, "unsaved")
	e.SuppressQuitDialog()
	if !e.HandleKey(ctrlEvent(tcell.KeyCtrlQ)) {
		t.Fatal("pipe mode still showed the quit dialog")
	}
}

func TestEscQuitBinding(t *testing.T) {
	e := newTestEditor(t, "clean")
	if !e.HandleKey(keyEvent(tcell.KeyEscape, 0)) {
		t.Fatal("esc did not quit a clean buffer")
	}
}

func TestGotoLineDialog(t *testing.T) {
	e := newTestEditor(t, "one\ntwo\nthree\nfour")
	e.HandleKey(ctrlEvent(tcell.KeyCtrlG))
	if e.mode != ModeGotoLine {
		t.Fatalf("mode = %v, want ModeGotoLine", e.mode)
	}
	typeText(e, "3")
	e.HandleKey(keyEvent(tcell.KeyEnter, 0))
	if e.mode != ModeEdit {
		t.Fatalf("mode = %v after enter, want ModeEdit", e.mode)
	}
	if got := e.Document().Cursor(); got != (document.Cursor{Row: 2}) {
		t.Fatalf("Cursor() = %+v, want row 2", got)
	}
}

func TestGotoLineRejectsGarbage(t *testing.T) {
	e := newTestEditor(t, "one\ntwo")
	e.HandleKey(ctrlEvent(tcell.KeyCtrlG))
	typeText(e, "zap")
	e.HandleKey(keyEvent(tcell.KeyEnter, 0))
	if got := e.Document().Cursor(); got != (document.Cursor{}) {
		t.Fatalf("Cursor() = %+v, want unchanged", got)
	}
}

func TestSaveAsDialogFlow(t *testing.T) {
	e := newTestEditor(t, "")
	typeText(e, "content")
	// A scratch buffer has no path, so save opens the save-as dialog.
	e.HandleKey(ctrlEvent(tcell.KeyCtrlS))
	if e.mode != ModeSaveAs {
		t.Fatalf("mode = %v, want ModeSaveAs", e.mode)
	}
	path := filepath.Join(t.TempDir(), "out.md")
	typeText(e, path)
	e.HandleKey(keyEvent(tcell.KeyEnter, 0))
	if e.Document().Dirty() {
		t.Error("buffer still dirty after save-as")
	}
	if e.Document().Path() != path {
		t.Errorf("Path() = %q, want %q", e.Document().Path(), path)
	}
}

func TestDialogEscapeCancels(t *testing.T) {
	e := newTestEditor(t, "text")
	e.HandleKey(ctrlEvent(tcell.KeyCtrlG))
	typeText(e, "2")
	e.HandleKey(keyEvent(tcell.KeyEscape, 0))
	if e.mode != ModeEdit {
		t.Fatalf("mode = %v after esc, want ModeEdit", e.mode)
	}
	if got := e.Document().Cursor(); got != (document.Cursor{}) {
		t.Fatalf("Cursor() = %+v, want unchanged", got)
	}
}

func TestCompletionPopupAcceptance(t *testing.T) {
	e := newTestEditor(t, "")
	typeText(e, "#")

	e.acceptCompletion(complete.Result{
		Version:  e.Document().Version(),
		Row:      0,
		StartCol: 0,
		Items: []lsp.CompletionItem{
			{Label: "# Heading 1", InsertText: "# ", SortText: "1"},
			{Label: "## Heading 2", InsertText: "## ", SortText: "2"},
		},
	})
	if !e.popup.active {
		t.Fatal("popup not active after completion result")
	}

	e.HandleKey(keyEvent(tcell.KeyDown, 0))
	e.HandleKey(keyEvent(tcell.KeyEnter, 0))
	if got := e.Document().Content(); got != "## " {
		t.Fatalf("Content() = %q, want %q", got, "## ")
	}
	if e.popup.active {
		t.Error("popup still active after acceptance")
	}
}

func TestStaleCompletionDropped(t *testing.T) {
	e := newTestEditor(t, "")
	typeText(e, "#")
	stale := e.Document().Version()
	typeText(e, "x") // buffer moved on

	e.acceptCompletion(complete.Result{
		Version:  stale,
		Row:      0,
		StartCol: 0,
		Items:    []lsp.CompletionItem{{Label: "# Heading 1", InsertText: "# "}},
	})
	if e.popup.active {
		t.Fatal("stale completion result opened the popup")
	}
}

func TestPopupNarrowsWithTyping(t *testing.T) {
	e := newTestEditor(t, "")
	typeText(e, "#")
	e.acceptCompletion(complete.Result{
		Version:  e.Document().Version(),
		Row:      0,
		StartCol: 0,
		Items: []lsp.CompletionItem{
			{Label: "# Heading 1", InsertText: "# ", SortText: "1"},
			{Label: "## Heading 2", InsertText: "## ", SortText: "2"},
		},
	})
	if len(e.popup.items) != 2 {
		t.Fatalf("popup has %d items, want 2", len(e.popup.items))
	}
	typeText(e, "#")
	if len(e.popup.items) != 1 || e.popup.items[0].Label != "## Heading 2" {
		t.Fatalf("popup items = %+v, want only H2", e.popup.items)
	}
	// Deleting past the word start closes the popup.
	e.HandleKey(keyEvent(tcell.KeyBackspace2, 0))
	e.HandleKey(keyEvent(tcell.KeyBackspace2, 0))
	e.HandleKey(keyEvent(tcell.KeyBackspace2, 0))
	if e.popup.active {
		t.Error("popup survived deleting the whole prefix")
	}
}

func TestRenderStatusLine(t *testing.T) {
	s := newSimScreen(t)
	cfg := config.Default()
	d := document.New("/tmp/readme.md", []byte("# Title\nbody"))
	e := New(&cfg, d)
	e.SetGitBranch("main")
	e.Render(s)

	text := screenText(s)
	for _, want := range []string{"/tmp/readme.md", "main", "Ln 1, Col 1"} {
		if !strings.Contains(text, want) {
			t.Errorf("status line missing %q", want)
		}
	}
}

func TestRenderCursorLineRaw(t *testing.T) {
	s := newSimScreen(t)
	e := newTestEditor(t, "# Title\n- [ ] task")
	e.Render(s)

	text := screenText(s)
	// Cursor on line 0: heading shown raw, checkbox formatted.
	if !strings.Contains(text, "# Title") {
		t.Error("cursor line not shown as raw source")
	}
	if !strings.Contains(text, "☐ task") || strings.Contains(text, "[ ] task") {
		t.Error("non-cursor line not formatted")
	}

	e.HandleKey(keyEvent(tcell.KeyDown, 0))
	e.Render(s)
	text = screenText(s)
	if !strings.Contains(text, "- [ ] task") {
		t.Error("checkbox line not raw once the cursor is on it")
	}
}

func TestRenderQuitDialog(t *testing.T) {
	s := newSimScreen(t)
	e := newTestEditor(t, "")
	typeText(e, "dirty")
	e.HandleKey(ctrlEvent(tcell.KeyCtrlQ))
	e.Render(s)
	if !strings.Contains(screenText(s), "quit without saving") {
		t.Error("quit dialog not drawn")
	}
}

func TestToggleLineNumbers(t *testing.T) {
	s := newSimScreen(t)
	e := newTestEditor(t, "only line")
	e.Render(s)
	if !strings.Contains(screenText(s), "1 only line") {
		t.Errorf("line numbers not drawn:\n%s", screenText(s))
	}
	e.HandleKey(ctrlEvent(tcell.KeyCtrlL))
	e.Render(s)
	if strings.Contains(screenText(s), "1 only line") {
		t.Error("line numbers still drawn after toggle")
	}
}

func shiftEvent(k tcell.Key) *tcell.EventKey {
	return tcell.NewEventKey(k, 0, tcell.ModShift)
}

func TestShiftArrowSelectsAndDeletes(t *testing.T) {
	e := newTestEditor(t, "")
	typeText(e, "hello world")
	e.HandleKey(keyEvent(tcell.KeyHome, 0))
	for i := 0; i < 6; i++ {
		e.HandleKey(shiftEvent(tcell.KeyRight))
	}
	start, end, ok := e.Document().Selection()
	if !ok || start.Col != 0 || end.Col != 6 {
		t.Fatalf("Selection() = %v..%v active=%v, want {0 0}..{0 6}", start, end, ok)
	}
	e.HandleKey(keyEvent(tcell.KeyBackspace2, 0))
	if got := e.Document().Content(); got != "world" {
		t.Fatalf("Content() = %q after deleting selection, want %q", got, "world")
	}
}

func TestTypingReplacesSelectionInOneUndoStep(t *testing.T) {
	e := newTestEditor(t, "cat")
	e.HandleKey(shiftEvent(tcell.KeyEnd))
	typeText(e, "d")
	if got := e.Document().Content(); got != "d" {
		t.Fatalf("Content() = %q, want %q", got, "d")
	}
	e.HandleKey(ctrlEvent(tcell.KeyCtrlZ))
	if got := e.Document().Content(); got != "cat" {
		t.Fatalf("Content() = %q after one undo, want %q", got, "cat")
	}
}

func TestPlainMovementDropsSelection(t *testing.T) {
	e := newTestEditor(t, "abc")
	e.HandleKey(shiftEvent(tcell.KeyRight))
	if !e.Document().HasSelection() {
		t.Fatal("shift+right did not select")
	}
	e.HandleKey(keyEvent(tcell.KeyLeft, 0))
	if e.Document().HasSelection() {
		t.Error("selection survived unshifted movement")
	}
}

func TestSearchDialogIncrementalJump(t *testing.T) {
	s := newSimScreen(t)
	e := newTestEditor(t, "alpha\nbeta\nalpha beta")
	e.HandleKey(ctrlEvent(tcell.KeyCtrlW))
	if e.mode != ModeSearch {
		t.Fatalf("mode = %v, want ModeSearch", e.mode)
	}
	typeText(e, "beta")
	if got := e.Document().Cursor(); got != (document.Cursor{Row: 1, Col: 0}) {
		t.Fatalf("Cursor() = %+v after typing query, want {1 0}", got)
	}
	e.Render(s)
	if !strings.Contains(screenText(s), "find: beta") {
		t.Error("search dialog not drawn")
	}

	e.HandleKey(keyEvent(tcell.KeyEnter, 0))
	if got := e.Document().Cursor(); got != (document.Cursor{Row: 2, Col: 6}) {
		t.Fatalf("Cursor() = %+v after next, want {2 6}", got)
	}
	// Past the last match the search wraps to the first.
	e.HandleKey(keyEvent(tcell.KeyEnter, 0))
	if got := e.Document().Cursor(); got != (document.Cursor{Row: 1, Col: 0}) {
		t.Fatalf("Cursor() = %+v after wrap, want {1 0}", got)
	}

	e.HandleKey(keyEvent(tcell.KeyEscape, 0))
	if e.mode != ModeEdit {
		t.Fatalf("mode = %v after esc, want ModeEdit", e.mode)
	}
	if got := e.Document().Cursor(); got != (document.Cursor{Row: 1, Col: 0}) {
		t.Fatalf("Cursor() = %+v after esc, want position kept", got)
	}
}

func TestSearchNoMatches(t *testing.T) {
	s := newSimScreen(t)
	e := newTestEditor(t, "one\ntwo")
	e.HandleKey(keyEvent(tcell.KeyDown, 0))
	e.HandleKey(ctrlEvent(tcell.KeyCtrlW))
	typeText(e, "zzz")
	if got := e.Document().Cursor(); got != (document.Cursor{Row: 1, Col: 0}) {
		t.Fatalf("Cursor() = %+v, want back at origin", got)
	}
	e.Render(s)
	if !strings.Contains(screenText(s), "no matches") {
		t.Error("missing match feedback in the dialog")
	}
}

func TestDiagnosticsHiddenAfterEdit(t *testing.T) {
	s := newSimScreen(t)
	cfg := config.Default()
	d := document.New("/tmp/x.md", []byte("# hi"))
	e := New(&cfg, d)

	v := d.Version()
	e.EnqueueDiagnostics(lsp.PublishDiagnosticsParams{
		URI:     "file:///tmp/x.md",
		Version: &v,
		Diagnostics: []lsp.Diagnostic{{
			Range:    lsp.Range{Start: lsp.Position{Line: 0}, End: lsp.Position{Line: 0, Character: 4}},
			Severity: lsp.SeverityError,
			Message:  "broken link",
		}},
	})
	e.Tick()
	e.Render(s)
	if !strings.Contains(screenText(s), "E:1") {
		t.Fatalf("diagnostic count not shown:\n%s", screenText(s))
	}

	// One edit makes the published set stale; nothing is shown until the
	// server republishes for the new version.
	typeText(e, "x")
	e.Render(s)
	if strings.Contains(screenText(s), "E:1") {
		t.Error("stale diagnostic still shown after an edit")
	}
}

func TestShutdownClearsDiagnostics(t *testing.T) {
	cfg := config.Default()
	d := document.New("/tmp/y.md", []byte("text"))
	e := New(&cfg, d)

	v := d.Version()
	e.EnqueueDiagnostics(lsp.PublishDiagnosticsParams{
		URI:         "file:///tmp/y.md",
		Version:     &v,
		Diagnostics: []lsp.Diagnostic{{Severity: lsp.SeverityWarning, Message: "w"}},
	})
	e.Tick()
	if _, warns := e.diags.Counts("/tmp/y.md", d.Version()); warns != 1 {
		t.Fatal("diagnostic not stored")
	}
	e.Shutdown()
	if errs, warns := e.diags.Counts("/tmp/y.md", d.Version()); errs+warns != 0 {
		t.Error("diagnostics survived shutdown")
	}
}
