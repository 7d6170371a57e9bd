// Package editor is the controller between the document, the render
// resolver, and the LSP subsystem. It owns the mode state machine and
// all key handling; painting lives in draw.go.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/rkovacs/medit/internal/complete"
	"github.com/rkovacs/medit/internal/config"
	"github.com/rkovacs/medit/internal/diagnostics"
	"github.com/rkovacs/medit/internal/document"
	"github.com/rkovacs/medit/internal/logger"
	"github.com/rkovacs/medit/internal/lsp"
	"github.com/rkovacs/medit/internal/navigate"
	"github.com/rkovacs/medit/internal/query"
	"github.com/rkovacs/medit/internal/render"
)

// Mode is the editor's interaction mode. Anything other than ModeEdit
// renders the whole buffer formatted.
type Mode int

const (
	ModeEdit Mode = iota
	ModeQuitConfirm
	ModeSaveAs
	ModeGotoLine
	ModeQuery
	ModeSearch
)

// Editor wires one current document to the render resolver and the LSP
// subsystem. All methods run on the UI goroutine.
type Editor struct {
	cfg      *config.Config
	registry *lsp.Registry

	doc      *document.Document
	open     map[string]*document.Document
	resolver *render.Resolver
	diags    *diagnostics.Store
	nav      *navigate.Engine
	comp     *complete.Controller

	mode       Mode
	scroll     int
	viewHeight int

	keymap          map[string]string
	showLineNumbers bool

	status      string
	statusUntil time.Time
	gitBranch   string

	input    []rune
	queryErr string

	searchOrigin document.Cursor
	searchInfo   string

	popup popupState

	pendingChange bool
	lastChange    time.Time

	diagCh chan lsp.PublishDiagnosticsParams

	// Pipe mode writes the buffer to stdout on exit; the quit dialog
	// makes no sense there.
	suppressQuitDialog bool
}

type popupState struct {
	active   bool
	row      int
	startCol int
	// openCol is the cursor column when the popup appeared; deleting
	// back past it closes the popup.
	openCol  int
	items    []lsp.CompletionItem
	all      []lsp.CompletionItem
	selected int
}

// New builds the controller around an initial document.
func New(cfg *config.Config, doc *document.Document) *Editor {
	e := &Editor{
		cfg:             cfg,
		doc:             doc,
		open:            map[string]*document.Document{},
		resolver:        render.NewResolver(render.NewRenderer(cfg.Editor.Theme)),
		diags:           diagnostics.NewStore(),
		comp:            complete.NewController(),
		showLineNumbers: cfg.Editor.ShowLineNumbers,
		keymap:          buildKeymap(cfg.Keymap),
		diagCh:          make(chan lsp.PublishDiagnosticsParams, 16),
	}
	if doc.Path() != "" {
		e.open[doc.Path()] = doc
	}
	doc.OnChange(e.onDocChange)
	return e
}

// AttachRegistry connects the LSP subsystem and announces the current
// document. Call once before the event loop starts.
func (e *Editor) AttachRegistry(reg *lsp.Registry) {
	e.registry = reg
	e.nav = navigate.NewEngine(e.sessionSource, e, 0)
	if s, err := e.session(); err == nil {
		s.DidOpen(e.doc.Path(), e.doc.LanguageID(), e.doc.Version(), e.doc.Content())
	}
}

// SuppressQuitDialog disables the unsaved-changes prompt, used in pipe
// mode where the buffer goes to stdout regardless.
func (e *Editor) SuppressQuitDialog() { e.suppressQuitDialog = true }

// Document returns the current buffer.
func (e *Editor) Document() *document.Document { return e.doc }

// EnqueueDiagnostics accepts a publish from a session goroutine and
// defers it to the UI loop. Never blocks.
func (e *Editor) EnqueueDiagnostics(p lsp.PublishDiagnosticsParams) {
	select {
	case e.diagCh <- p:
	default:
	}
}

// OpenDocuments implements lsp.DocumentSource: what a restarted server
// must be told about, with live content and versions.
func (e *Editor) OpenDocuments(languageID string) []lsp.OpenDocument {
	var out []lsp.OpenDocument
	for _, d := range e.open {
		if d.LanguageID() != languageID {
			continue
		}
		out = append(out, lsp.OpenDocument{
			Path:       d.Path(),
			LanguageID: d.LanguageID(),
			Version:    d.Version(),
			Text:       d.Content(),
		})
	}
	return out
}

// CurrentLocation implements navigate.Opener.
func (e *Editor) CurrentLocation() navigate.Jump {
	c := e.doc.Cursor()
	return navigate.Jump{Path: e.doc.Path(), Line: c.Row, Col: c.Col}
}

// OpenLocation implements navigate.Opener: switches buffers when the
// target lives in another file and places the cursor.
func (e *Editor) OpenLocation(path string, line, col int) error {
	if path != "" && path != e.doc.Path() {
		if err := e.switchDocument(path); err != nil {
			return err
		}
	}
	e.doc.SetCursor(document.Cursor{Row: line, Col: col})
	e.scrollToCursor()
	return nil
}

func (e *Editor) switchDocument(path string) error {
	e.flushDidChange()
	d, ok := e.open[path]
	if !ok {
		var err error
		d, err = document.Open(path)
		if err != nil {
			return err
		}
		e.open[path] = d
		d.OnChange(e.onDocChange)
		if s, err := e.sessionFor(d.LanguageID()); err == nil {
			s.DidOpen(d.Path(), d.LanguageID(), d.Version(), d.Content())
		}
	}
	e.doc = d
	e.scroll = 0
	e.resolver.Invalidate()
	e.closePopup()
	return nil
}

func (e *Editor) session() (*lsp.Session, error) {
	return e.sessionFor(e.doc.LanguageID())
}

func (e *Editor) sessionFor(languageID string) (*lsp.Session, error) {
	if e.registry == nil {
		return nil, lsp.ErrNoServerConfigured
	}
	return e.registry.Get(languageID)
}

func (e *Editor) sessionSource(languageID string) (navigate.FeatureClient, error) {
	return e.sessionFor(languageID)
}

func (e *Editor) onDocChange() {
	e.pendingChange = true
	e.lastChange = time.Now()
}

// Tick drains asynchronous LSP results and flushes the didChange
// debounce. The app loop calls it on every wakeup.
func (e *Editor) Tick() {
	for {
		select {
		case p := <-e.diagCh:
			e.acceptDiagnostics(p)
			continue
		default:
		}
		break
	}
	for {
		select {
		case res := <-e.comp.Results():
			e.acceptCompletion(res)
			continue
		default:
		}
		break
	}
	if e.registry != nil {
		for {
			select {
			case ev := <-e.registry.Events():
				e.acceptRegistryEvent(ev)
				continue
			default:
			}
			break
		}
	}

	debounce := time.Duration(e.cfg.Editor.DebounceMs) * time.Millisecond
	if e.pendingChange && time.Since(e.lastChange) >= debounce {
		e.flushDidChange()
	}
}

func (e *Editor) flushDidChange() {
	if !e.pendingChange {
		return
	}
	e.pendingChange = false
	if s, err := e.session(); err == nil {
		s.DidChange(e.doc.Path(), e.doc.Version(), e.doc.Content())
	}
}

func (e *Editor) acceptDiagnostics(p lsp.PublishDiagnosticsParams) {
	path := lsp.URIToPath(p.URI)
	version := 0
	if d, ok := e.open[path]; ok {
		version = d.Version()
	}
	e.diags.Publish(path, version, p.Version, p.Diagnostics)
}

func (e *Editor) acceptRegistryEvent(ev lsp.Event) {
	switch ev.Kind {
	case lsp.EventCrashed:
		e.setStatus(fmt.Sprintf("%s server crashed, restarting", ev.LanguageID))
	case lsp.EventRestarted:
		e.setStatus(fmt.Sprintf("%s server restarted", ev.LanguageID))
	case lsp.EventDisabled:
		e.diags.Clear()
		e.setStatus(fmt.Sprintf("%s server disabled after repeated crashes", ev.LanguageID))
	}
}

func (e *Editor) setStatus(msg string) {
	e.status = msg
	e.statusUntil = time.Now().Add(4 * time.Second)
}

func (e *Editor) statusMessage() string {
	if time.Now().After(e.statusUntil) {
		return ""
	}
	return e.status
}

// SetGitBranch updates the branch shown in the status line.
func (e *Editor) SetGitBranch(branch string) { e.gitBranch = branch }

// buildKeymap inverts the config's action→chord table into chord→action.
func buildKeymap(kb config.Keybindings) map[string]string {
	m := map[string]string{}
	add := func(chord, action string) {
		if chord != "" {
			m[strings.ToLower(chord)] = action
		}
	}
	add(kb.Quit, "quit")
	add(kb.QuitAlt, "quit")
	add(kb.Save, "save")
	add(kb.GotoDefinition, "goto-definition")
	add(kb.FindReferences, "find-references")
	add(kb.NavigateBack, "navigate-back")
	add(kb.NavigateForward, "navigate-forward")
	add(kb.Search, "search")
	add(kb.Undo, "undo")
	add(kb.Redo, "redo")
	add(kb.GotoLine, "goto-line")
	add(kb.Query, "query")
	add(kb.LineNumbers, "toggle-line-numbers")
	return m
}

// chord renders a key event the way keybindings are written in the
// config file, "ctrl+q", "esc" and so on.
func chord(ev *tcell.EventKey) string {
	mods := ""
	if ev.Modifiers()&tcell.ModCtrl != 0 {
		mods = "ctrl+"
	}
	switch ev.Key() {
	case tcell.KeyEscape:
		return "esc"
	case tcell.KeyEnter:
		return mods + "enter"
	case tcell.KeyRune:
		return mods + strings.ToLower(string(ev.Rune()))
	}
	if ev.Key() >= tcell.KeyCtrlA && ev.Key() <= tcell.KeyCtrlZ {
		return "ctrl+" + string(rune('a'+ev.Key()-tcell.KeyCtrlA))
	}
	return ""
}

// HandleKey processes one key event. Reports whether the editor should
// exit.
func (e *Editor) HandleKey(ev *tcell.EventKey) bool {
	switch e.mode {
	case ModeQuitConfirm:
		return e.handleQuitConfirmKey(ev)
	case ModeSaveAs, ModeGotoLine, ModeQuery:
		e.handleDialogKey(ev)
		return false
	case ModeSearch:
		e.handleSearchKey(ev)
		return false
	}
	return e.handleEditKey(ev)
}

func (e *Editor) handleEditKey(ev *tcell.EventKey) bool {
	if action, ok := e.keymap[chord(ev)]; ok {
		return e.runAction(action, ev)
	}

	switch ev.Key() {
	case tcell.KeyUp:
		if e.popup.active {
			e.movePopup(-1)
			return false
		}
		e.trackSelection(ev)
		e.doc.MoveUp()
	case tcell.KeyDown:
		if e.popup.active {
			e.movePopup(1)
			return false
		}
		e.trackSelection(ev)
		e.doc.MoveDown()
	case tcell.KeyLeft:
		e.closePopup()
		e.trackSelection(ev)
		e.doc.MoveLeft()
	case tcell.KeyRight:
		e.closePopup()
		e.trackSelection(ev)
		e.doc.MoveRight()
	case tcell.KeyHome:
		e.closePopup()
		e.trackSelection(ev)
		e.doc.MoveLineStart()
	case tcell.KeyEnd:
		e.closePopup()
		e.trackSelection(ev)
		e.doc.MoveLineEnd()
	case tcell.KeyPgUp:
		e.closePopup()
		e.doc.ClearSelection()
		e.pageMove(-1)
	case tcell.KeyPgDn:
		e.closePopup()
		e.doc.ClearSelection()
		e.pageMove(1)
	case tcell.KeyEnter:
		if e.popup.active {
			e.acceptPopup()
			return false
		}
		if start, end, ok := e.doc.Selection(); ok {
			e.doc.ReplaceRange(start, end, "\n")
		} else {
			e.doc.InsertNewline()
		}
	case tcell.KeyTab:
		if start, end, ok := e.doc.Selection(); ok {
			e.doc.ReplaceRange(start, end, "\t")
		} else {
			e.doc.InsertRune('\t')
		}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if !e.doc.DeleteSelection() {
			e.doc.DeleteBackward()
		}
		e.refreshPopup()
	case tcell.KeyDelete:
		if !e.doc.DeleteSelection() {
			e.doc.DeleteForward()
		}
	case tcell.KeyRune:
		e.insertRune(ev.Rune())
	}
	e.scrollToCursor()
	return false
}

func (e *Editor) runAction(action string, ev *tcell.EventKey) bool {
	switch action {
	case "quit":
		if e.popup.active {
			e.closePopup()
			return false
		}
		return e.requestQuit()
	case "save":
		e.save("")
	case "goto-definition":
		e.gotoDefinition()
	case "find-references":
		e.findReferences()
	case "navigate-back":
		if e.nav != nil && !e.nav.Back() {
			e.setStatus("already at the oldest location")
		}
	case "navigate-forward":
		if e.nav != nil && !e.nav.Forward() {
			e.setStatus("already at the newest location")
		}
	case "undo":
		e.closePopup()
		if !e.doc.Undo() {
			e.setStatus("nothing to undo")
		}
	case "redo":
		e.closePopup()
		if !e.doc.Redo() {
			e.setStatus("nothing to redo")
		}
	case "goto-line":
		e.openDialog(ModeGotoLine)
	case "search":
		e.openSearch()
	case "query":
		e.openDialog(ModeQuery)
	case "toggle-line-numbers":
		e.showLineNumbers = !e.showLineNumbers
	}
	e.scrollToCursor()
	return false
}

func (e *Editor) requestQuit() bool {
	if e.doc.Dirty() && !e.suppressQuitDialog {
		e.mode = ModeQuitConfirm
		return false
	}
	return true
}

func (e *Editor) handleQuitConfirmKey(ev *tcell.EventKey) bool {
	switch {
	case ev.Key() == tcell.KeyRune && (ev.Rune() == 'y' || ev.Rune() == 'Y'):
		return true
	case ev.Key() == tcell.KeyRune && (ev.Rune() == 'n' || ev.Rune() == 'N'),
		ev.Key() == tcell.KeyEscape:
		e.mode = ModeEdit
	}
	return false
}

func (e *Editor) openDialog(m Mode) {
	e.closePopup()
	e.flushDidChange()
	e.mode = m
	e.input = e.input[:0]
	e.queryErr = ""
}

func (e *Editor) handleDialogKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape:
		e.mode = ModeEdit
		e.queryErr = ""
	case tcell.KeyEnter:
		e.submitDialog()
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(e.input) > 0 {
			e.input = e.input[:len(e.input)-1]
		}
	case tcell.KeyRune:
		e.input = append(e.input, ev.Rune())
	}
}

func (e *Editor) submitDialog() {
	text := string(e.input)
	switch e.mode {
	case ModeSaveAs:
		if text == "" {
			return
		}
		e.mode = ModeEdit
		e.save(text)
	case ModeGotoLine:
		e.mode = ModeEdit
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil || n < 1 {
			e.setStatus("not a line number: " + text)
			return
		}
		e.doc.SetCursor(document.Cursor{Row: n - 1})
		e.scrollToCursor()
	case ModeQuery:
		e.runQuery(text)
	}
}

func (e *Editor) save(path string) {
	err := e.doc.Save(path)
	if errors.Is(err, document.ErrNoFileName) {
		e.openDialog(ModeSaveAs)
		return
	}
	if err != nil {
		e.setStatus("save failed: " + err.Error())
		return
	}
	e.open[e.doc.Path()] = e.doc
	e.setStatus("saved " + e.doc.Path())
}

func (e *Editor) runQuery(q string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := query.Run(ctx, e.cfg.Query, e.doc.Content(), q)
	if err != nil {
		// The dialog stays open showing the error; the buffer is not
		// touched.
		e.queryErr = err.Error()
		return
	}
	e.mode = ModeEdit
	start := e.doc.Cursor()
	e.doc.InsertText(result)
	e.doc.SetCursor(start)
	e.scrollToCursor()
}

func (e *Editor) gotoDefinition() {
	if e.nav == nil {
		return
	}
	e.flushDidChange()
	c := e.doc.Cursor()
	ctx := context.Background()
	err := e.nav.GotoDefinition(ctx, e.doc.LanguageID(), e.doc.Path(), lsp.Position{Line: c.Row, Character: c.Col})
	if err != nil {
		e.setStatus(featureErrorMessage("definition", err))
	}
}

func (e *Editor) findReferences() {
	if e.nav == nil {
		return
	}
	e.flushDidChange()
	c := e.doc.Cursor()
	locs, err := e.nav.References(context.Background(), e.doc.LanguageID(), e.doc.Path(), lsp.Position{Line: c.Row, Character: c.Col})
	if err != nil {
		e.setStatus(featureErrorMessage("references", err))
		return
	}
	// A single reference jumps straight there; more than one cycles on
	// repeated invocation starting from the first.
	if err := e.nav.JumpTo(locs[0]); err != nil {
		e.setStatus(err.Error())
		return
	}
	if len(locs) > 1 {
		e.setStatus(fmt.Sprintf("1 of %d references", len(locs)))
	}
}

// featureErrorMessage turns the LSP error taxonomy into a short status
// line string. None of these are fatal.
func featureErrorMessage(feature string, err error) string {
	switch {
	case errors.Is(err, navigate.ErrNoLocations):
		return "no " + feature + " found"
	case errors.Is(err, lsp.ErrNoServerConfigured):
		return "no language server configured"
	case errors.Is(err, lsp.ErrServerDisabled):
		return "language server disabled"
	case errors.Is(err, lsp.ErrServerNotReady):
		return "language server still starting"
	case errors.Is(err, lsp.ErrCapabilityUnavailable):
		return feature + " not supported by server"
	case errors.Is(err, lsp.ErrRequestTimeout):
		return feature + " request timed out"
	default:
		logger.Warn("lsp feature failed", "feature", feature, "err", err)
		return feature + ": " + err.Error()
	}
}

// trackSelection anchors the selection on shifted movement and drops it
// on plain movement.
func (e *Editor) trackSelection(ev *tcell.EventKey) {
	if ev.Modifiers()&tcell.ModShift != 0 {
		e.doc.StartSelection()
	} else {
		e.doc.ClearSelection()
	}
}

func (e *Editor) openSearch() {
	e.closePopup()
	e.doc.ClearSelection()
	e.mode = ModeSearch
	e.input = e.input[:0]
	e.searchOrigin = e.doc.Cursor()
	e.searchInfo = ""
}

// handleSearchKey drives the incremental find dialog: typing re-runs
// the search from the origin, enter advances to the next match, escape
// closes the dialog keeping the cursor where the search left it.
func (e *Editor) handleSearchKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape:
		e.mode = ModeEdit
		e.searchInfo = ""
	case tcell.KeyEnter:
		c := e.doc.Cursor()
		e.runSearch(document.Cursor{Row: c.Row, Col: c.Col + 1})
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(e.input) > 0 {
			e.input = e.input[:len(e.input)-1]
		}
		e.runSearch(e.searchOrigin)
	case tcell.KeyRune:
		e.input = append(e.input, ev.Rune())
		e.runSearch(e.searchOrigin)
	}
}

// runSearch jumps to the first match at or after from, wrapping to the
// top when none follows. An empty or unmatched query returns the
// cursor to where the search started.
func (e *Editor) runSearch(from document.Cursor) {
	q := string(e.input)
	matches := e.searchMatches(q)
	if len(matches) == 0 {
		e.searchInfo = ""
		if q != "" {
			e.searchInfo = "no matches"
		}
		e.doc.SetCursor(e.searchOrigin)
		e.scrollToCursor()
		return
	}
	idx := -1
	for i, m := range matches {
		if !m.Less(from) {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = 0
	}
	e.doc.SetCursor(matches[idx])
	e.scrollToCursor()
	e.searchInfo = fmt.Sprintf("%d/%d", idx+1, len(matches))
}

// searchMatches lists the start position of every occurrence of q.
func (e *Editor) searchMatches(q string) []document.Cursor {
	if q == "" {
		return nil
	}
	var out []document.Cursor
	for row := 0; row < e.doc.LineCount(); row++ {
		line := e.doc.Line(row)
		for from := 0; ; {
			i := strings.Index(line[from:], q)
			if i < 0 {
				break
			}
			at := from + i
			out = append(out, document.Cursor{Row: row, Col: len([]rune(line[:at]))})
			from = at + len(q)
		}
	}
	return out
}

func (e *Editor) insertRune(r rune) {
	if start, end, ok := e.doc.Selection(); ok {
		e.doc.ReplaceRange(start, end, string(r))
		return
	}
	e.doc.InsertRune(r)
	if e.popup.active {
		e.refreshPopup()
		return
	}
	e.maybeTriggerCompletion(r)
}

func (e *Editor) maybeTriggerCompletion(r rune) {
	s, err := e.session()
	if err != nil {
		return
	}
	if !complete.IsTrigger(s.TriggerCharacters(), r) {
		return
	}
	e.flushDidChange()
	c := e.doc.Cursor()
	startCol := e.doc.WordStartCol(c.Row, c.Col)
	e.comp.Request(context.Background(), s, e.doc.Path(), c.Row, c.Col, startCol, e.doc.Version(), string(r))
}

func (e *Editor) acceptCompletion(res complete.Result) {
	if res.Err != nil {
		if !errors.Is(res.Err, lsp.ErrCapabilityUnavailable) && !errors.Is(res.Err, lsp.ErrServerNotReady) {
			e.setStatus(featureErrorMessage("completion", res.Err))
		}
		return
	}
	// Stale results describe an older buffer; drop them.
	if res.Version != e.doc.Version() || res.Row != e.doc.Cursor().Row {
		return
	}
	e.popup = popupState{
		row:      res.Row,
		startCol: res.StartCol,
		openCol:  e.doc.Cursor().Col,
		all:      res.Items,
	}
	e.refreshPopup()
}

// refreshPopup refilters the item list against the current prefix and
// closes the popup when nothing matches or the cursor left the word.
func (e *Editor) refreshPopup() {
	if len(e.popup.all) == 0 {
		return
	}
	c := e.doc.Cursor()
	if c.Row != e.popup.row || c.Col < e.popup.startCol || c.Col < e.popup.openCol {
		e.closePopup()
		return
	}
	prefix := string([]rune(e.doc.Line(c.Row))[e.popup.startCol:c.Col])
	items := complete.Filter(e.popup.all, prefix)
	if len(items) == 0 {
		e.closePopup()
		return
	}
	e.popup.items = items
	e.popup.active = true
	if e.popup.selected >= len(items) {
		e.popup.selected = len(items) - 1
	}
}

func (e *Editor) movePopup(delta int) {
	n := len(e.popup.items)
	if n == 0 {
		return
	}
	e.popup.selected = (e.popup.selected + delta + n) % n
}

func (e *Editor) acceptPopup() {
	item := e.popup.items[e.popup.selected]
	complete.Apply(e.doc, e.popup.startCol, item)
	e.closePopup()
	e.scrollToCursor()
}

func (e *Editor) closePopup() {
	e.popup = popupState{}
	e.comp.Cancel()
}

func (e *Editor) pageMove(dir int) {
	page := e.viewHeight
	if page < 1 {
		page = 1
	}
	c := e.doc.Cursor()
	c.Row += dir * page
	e.doc.SetCursor(c)
}

// Shutdown flushes pending sync, closes every open document with its
// server, and stops the LSP subsystem.
func (e *Editor) Shutdown() {
	e.flushDidChange()
	e.closeOpenDocuments()
	if e.registry != nil {
		e.registry.Shutdown()
	}
}

// closeOpenDocuments sends didClose for every open buffer and drops its
// diagnostics. Only already-running sessions are told; closing must not
// spawn a server.
func (e *Editor) closeOpenDocuments() {
	docs := make([]*document.Document, 0, len(e.open)+1)
	current := false
	for _, d := range e.open {
		docs = append(docs, d)
		if d == e.doc {
			current = true
		}
	}
	if !current {
		docs = append(docs, e.doc)
	}
	for _, d := range docs {
		if e.registry != nil && e.registry.Running(d.LanguageID()) {
			if s, err := e.sessionFor(d.LanguageID()); err == nil {
				s.DidClose(d.Path())
			}
		}
		e.diags.ClearFile(d.Path())
	}
}
