// Package document holds the text buffer: rune lines, a cursor, the
// grouped inverse-action undo model, and the monotonically increasing
// version that document sync is stamped with.
package document

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrNoFileName is returned by Save on a scratch buffer with no path.
var ErrNoFileName = errors.New("no file name")

// Cursor addresses a rune position in the buffer.
type Cursor struct {
	Row int
	Col int
}

// Less reports whether c comes before other in document order.
func (c Cursor) Less(other Cursor) bool {
	if c.Row != other.Row {
		return c.Row < other.Row
	}
	return c.Col < other.Col
}

type actionKind int

const (
	actionInsertRune actionKind = iota
	actionDeleteRune
	actionSplitLine
	actionJoinLine
	actionInsertText
	actionDeleteText
)

// action is one reversible edit. Applying it yields the inverse action,
// which is what the undo and redo stacks hold.
type action struct {
	kind   actionKind
	pos    Cursor
	r      rune
	text   [][]rune
	endPos Cursor
	group  uint64
}

// Document is a single open text buffer.
type Document struct {
	path       string
	languageID string
	lines      [][]rune
	cursor     Cursor

	selAnchor Cursor
	selActive bool

	undo      []action
	redo      []action
	undoGroup uint64
	grouping  bool
	savePoint int
	dirty     bool

	version  int
	onChange func()
}

// Open reads path into a new buffer. A missing file yields an empty
// buffer bound to that path, so saving creates it.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(path, nil), nil
		}
		return nil, err
	}
	return New(path, data), nil
}

// New builds a buffer from raw content. path may be empty for scratch
// and pipe buffers.
func New(path string, data []byte) *Document {
	lines := splitLines(data)
	if len(lines) == 0 {
		lines = [][]rune{{}}
	}
	return &Document{
		path:       path,
		languageID: DetectLanguage(path),
		lines:      lines,
		version:    1,
	}
}

// DetectLanguage maps a file extension to an LSP language identifier.
func DetectLanguage(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "markdown"
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".py":
		return "python"
	case ".js":
		return "javascript"
	case ".ts":
		return "typescript"
	default:
		return "plaintext"
	}
}

func (d *Document) Path() string       { return d.path }
func (d *Document) LanguageID() string { return d.languageID }
func (d *Document) Version() int       { return d.version }
func (d *Document) Dirty() bool        { return d.dirty }
func (d *Document) LineCount() int     { return len(d.lines) }
func (d *Document) Cursor() Cursor     { return d.cursor }

// OnChange registers a hook called after every buffer mutation,
// including undo and redo. At most one hook is kept.
func (d *Document) OnChange(fn func()) { d.onChange = fn }

// Line returns row's content as a string, empty when out of range.
func (d *Document) Line(row int) string {
	if row < 0 || row >= len(d.lines) {
		return ""
	}
	return string(d.lines[row])
}

// LineLen returns the rune length of row, 0 when out of range.
func (d *Document) LineLen(row int) int {
	if row < 0 || row >= len(d.lines) {
		return 0
	}
	return len(d.lines[row])
}

// Content joins the buffer back into a single string with trailing
// newlines preserved per line.
func (d *Document) Content() string {
	return joinLines(d.lines)
}

// SetCursor moves the cursor, clamping to the buffer.
func (d *Document) SetCursor(c Cursor) {
	if c.Row < 0 {
		c.Row = 0
	}
	if c.Row >= len(d.lines) {
		c.Row = len(d.lines) - 1
	}
	if c.Col < 0 {
		c.Col = 0
	}
	if c.Col > len(d.lines[c.Row]) {
		c.Col = len(d.lines[c.Row])
	}
	d.cursor = c
}

func (d *Document) MoveLeft() {
	if d.cursor.Col > 0 {
		d.cursor.Col--
		return
	}
	if d.cursor.Row > 0 {
		d.cursor.Row--
		d.cursor.Col = len(d.lines[d.cursor.Row])
	}
}

func (d *Document) MoveRight() {
	if d.cursor.Col < len(d.lines[d.cursor.Row]) {
		d.cursor.Col++
		return
	}
	if d.cursor.Row+1 < len(d.lines) {
		d.cursor.Row++
		d.cursor.Col = 0
	}
}

func (d *Document) MoveUp() {
	if d.cursor.Row > 0 {
		d.cursor.Row--
		d.clampCursorCol()
	}
}

func (d *Document) MoveDown() {
	if d.cursor.Row+1 < len(d.lines) {
		d.cursor.Row++
		d.clampCursorCol()
	}
}

func (d *Document) MoveLineStart() { d.cursor.Col = 0 }
func (d *Document) MoveLineEnd()   { d.cursor.Col = len(d.lines[d.cursor.Row]) }

// StartSelection anchors a selection at the cursor. A second call while
// a selection is active keeps the original anchor, so shifted movement
// extends rather than restarts.
func (d *Document) StartSelection() {
	if !d.selActive {
		d.selAnchor = d.cursor
		d.selActive = true
	}
}

// ClearSelection drops the selection without touching the buffer.
func (d *Document) ClearSelection() { d.selActive = false }

// Selection returns the selected range in document order. ok is false
// when no selection is active or the anchor sits on the cursor.
func (d *Document) Selection() (start, end Cursor, ok bool) {
	if !d.selActive || d.selAnchor == d.cursor {
		return Cursor{}, Cursor{}, false
	}
	start, end = d.selAnchor, d.cursor
	if end.Less(start) {
		start, end = end, start
	}
	return start, end, true
}

// HasSelection reports whether a non-empty selection is active.
func (d *Document) HasSelection() bool {
	_, _, ok := d.Selection()
	return ok
}

// DeleteSelection removes the selected range, leaving the cursor at its
// start. Reports whether a selection was active.
func (d *Document) DeleteSelection() bool {
	start, end, ok := d.Selection()
	if !ok {
		return false
	}
	d.selActive = false
	d.DeleteRange(start, end)
	return true
}

func (d *Document) clampCursorCol() {
	if d.cursor.Col > len(d.lines[d.cursor.Row]) {
		d.cursor.Col = len(d.lines[d.cursor.Row])
	}
}

// InsertRune inserts r at the cursor and advances it.
func (d *Document) InsertRune(r rune) {
	pos := d.cursor
	if !d.insertRuneAt(pos, r) {
		return
	}
	d.recordUndo(action{kind: actionDeleteRune, pos: pos, r: r})
}

// InsertNewline splits the current line at the cursor.
func (d *Document) InsertNewline() {
	pos := d.cursor
	if pos.Col > len(d.lines[pos.Row]) {
		pos.Col = len(d.lines[pos.Row])
	}
	if !d.splitLineAt(pos) {
		return
	}
	d.recordUndo(action{kind: actionJoinLine, pos: pos})
}

// DeleteBackward removes the rune before the cursor, joining lines at
// column zero. No-op at the start of the buffer.
func (d *Document) DeleteBackward() {
	if d.cursor.Col > 0 {
		pos := Cursor{Row: d.cursor.Row, Col: d.cursor.Col - 1}
		line := d.lines[pos.Row]
		if pos.Col >= len(line) {
			pos.Col = len(line) - 1
		}
		if pos.Col < 0 {
			return
		}
		r := line[pos.Col]
		if !d.deleteRuneAt(pos) {
			return
		}
		d.recordUndo(action{kind: actionInsertRune, pos: pos, r: r})
		return
	}
	if d.cursor.Row == 0 {
		return
	}
	pos := Cursor{Row: d.cursor.Row - 1, Col: len(d.lines[d.cursor.Row-1])}
	if !d.joinLineAt(pos) {
		return
	}
	d.recordUndo(action{kind: actionSplitLine, pos: pos})
}

// DeleteForward removes the rune under the cursor, joining with the next
// line at end of line. No-op at the end of the buffer.
func (d *Document) DeleteForward() {
	line := d.lines[d.cursor.Row]
	if d.cursor.Col < len(line) {
		pos := d.cursor
		r := line[pos.Col]
		if !d.deleteRuneAt(pos) {
			return
		}
		d.recordUndo(action{kind: actionInsertRune, pos: pos, r: r})
		return
	}
	if d.cursor.Row+1 >= len(d.lines) {
		return
	}
	pos := d.cursor
	if !d.joinLineAt(pos) {
		return
	}
	d.recordUndo(action{kind: actionSplitLine, pos: pos})
}

// InsertText inserts a possibly multi-line string at the cursor as one
// undo group.
func (d *Document) InsertText(text string) {
	if text == "" {
		return
	}
	pos := d.cursor
	lines := splitLines([]byte(text))
	end := d.insertTextAt(pos, lines)
	d.cursor = end
	d.recordUndo(action{kind: actionDeleteText, pos: pos, endPos: end, text: lines})
}

// DeleteRange removes [start, end) and returns the removed text.
func (d *Document) DeleteRange(start, end Cursor) string {
	if end.Less(start) {
		start, end = end, start
	}
	deleted := d.deleteTextRange(start, end)
	if deleted == nil {
		return ""
	}
	d.recordUndo(action{kind: actionInsertText, pos: start, text: deleted})
	return joinLines(deleted)
}

// ReplaceRange removes [start, end) and inserts text at start as a
// single undo group, so one undo reverses the whole replacement.
func (d *Document) ReplaceRange(start, end Cursor, text string) {
	if end.Less(start) {
		start, end = end, start
	}
	d.undoGroup++
	d.grouping = true
	if start != end {
		d.DeleteRange(start, end)
	} else {
		d.SetCursor(start)
	}
	if text != "" {
		d.InsertText(text)
	}
	d.grouping = false
}

// Undo reverses the most recent undo group. Reports whether anything
// changed; an empty stack is a no-op.
func (d *Document) Undo() bool {
	if len(d.undo) == 0 {
		return false
	}
	group := d.undo[len(d.undo)-1].group
	for len(d.undo) > 0 && d.undo[len(d.undo)-1].group == group {
		idx := len(d.undo) - 1
		act := d.undo[idx]
		d.undo = d.undo[:idx]
		inv, ok := d.applyAction(act)
		if !ok {
			return false
		}
		inv.group = act.group
		d.redo = append(d.redo, inv)
	}
	d.bump()
	d.updateDirty()
	return true
}

// Redo reapplies the most recently undone group.
func (d *Document) Redo() bool {
	if len(d.redo) == 0 {
		return false
	}
	group := d.redo[len(d.redo)-1].group
	for len(d.redo) > 0 && d.redo[len(d.redo)-1].group == group {
		idx := len(d.redo) - 1
		act := d.redo[idx]
		d.redo = d.redo[:idx]
		inv, ok := d.applyAction(act)
		if !ok {
			return false
		}
		inv.group = act.group
		d.undo = append(d.undo, inv)
	}
	d.bump()
	d.updateDirty()
	return true
}

func (d *Document) applyAction(act action) (action, bool) {
	switch act.kind {
	case actionInsertRune:
		if !d.insertRuneAt(act.pos, act.r) {
			return action{}, false
		}
		return action{kind: actionDeleteRune, pos: act.pos, r: act.r}, true
	case actionDeleteRune:
		if !d.deleteRuneAt(act.pos) {
			return action{}, false
		}
		return action{kind: actionInsertRune, pos: act.pos, r: act.r}, true
	case actionSplitLine:
		if !d.splitLineAt(act.pos) {
			return action{}, false
		}
		return action{kind: actionJoinLine, pos: act.pos}, true
	case actionJoinLine:
		if !d.joinLineAt(act.pos) {
			return action{}, false
		}
		return action{kind: actionSplitLine, pos: act.pos}, true
	case actionInsertText:
		end := d.insertTextAt(act.pos, act.text)
		return action{kind: actionDeleteText, pos: act.pos, endPos: end, text: act.text}, true
	case actionDeleteText:
		deleted := d.deleteTextRange(act.pos, act.endPos)
		return action{kind: actionInsertText, pos: act.pos, text: deleted}, true
	default:
		return action{}, false
	}
}

func (d *Document) recordUndo(act action) {
	if !d.grouping {
		d.undoGroup++
	}
	act.group = d.undoGroup
	d.undo = append(d.undo, act)
	d.redo = d.redo[:0]
	d.bump()
	d.updateDirty()
}

func (d *Document) updateDirty() {
	d.dirty = len(d.undo) != d.savePoint
}

// bump advances the sync version and fires the change hook. Any buffer
// mutation invalidates an active selection.
func (d *Document) bump() {
	d.version++
	d.selActive = false
	if d.onChange != nil {
		d.onChange()
	}
}

// Save writes the buffer to path, or to the bound path when path is
// empty. The buffer stays dirty when the write fails.
func (d *Document) Save(path string) error {
	if path == "" {
		path = d.path
	}
	if path == "" {
		return ErrNoFileName
	}
	if err := os.WriteFile(path, []byte(d.Content()), 0o644); err != nil {
		return err
	}
	if d.path != path {
		d.path = path
		d.languageID = DetectLanguage(path)
	}
	d.savePoint = len(d.undo)
	d.updateDirty()
	return nil
}

// WordStartCol walks left from col on row to the start of the word the
// completion prefix begins at.
func (d *Document) WordStartCol(row, col int) int {
	if row < 0 || row >= len(d.lines) {
		return 0
	}
	line := d.lines[row]
	if col > len(line) {
		col = len(line)
	}
	for col > 0 {
		r := line[col-1]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '#' {
			break
		}
		col--
	}
	return col
}

func (d *Document) insertRuneAt(pos Cursor, r rune) bool {
	if pos.Row < 0 || pos.Row >= len(d.lines) {
		return false
	}
	line := d.lines[pos.Row]
	if pos.Col < 0 {
		pos.Col = 0
	}
	if pos.Col > len(line) {
		pos.Col = len(line)
	}
	line = append(line, 0)
	copy(line[pos.Col+1:], line[pos.Col:])
	line[pos.Col] = r
	d.lines[pos.Row] = line
	d.cursor = Cursor{Row: pos.Row, Col: pos.Col + 1}
	return true
}

func (d *Document) deleteRuneAt(pos Cursor) bool {
	if pos.Row < 0 || pos.Row >= len(d.lines) {
		return false
	}
	line := d.lines[pos.Row]
	if pos.Col < 0 || pos.Col >= len(line) {
		return false
	}
	copy(line[pos.Col:], line[pos.Col+1:])
	line = line[:len(line)-1]
	d.lines[pos.Row] = line
	d.cursor = pos
	return true
}

func (d *Document) splitLineAt(pos Cursor) bool {
	if pos.Row < 0 || pos.Row >= len(d.lines) {
		return false
	}
	line := d.lines[pos.Row]
	if pos.Col < 0 {
		pos.Col = 0
	}
	if pos.Col > len(line) {
		pos.Col = len(line)
	}
	left := append([]rune(nil), line[:pos.Col]...)
	right := append([]rune(nil), line[pos.Col:]...)

	newLines := make([][]rune, 0, len(d.lines)+1)
	newLines = append(newLines, d.lines[:pos.Row]...)
	newLines = append(newLines, left, right)
	newLines = append(newLines, d.lines[pos.Row+1:]...)
	d.lines = newLines

	d.cursor = Cursor{Row: pos.Row + 1, Col: 0}
	return true
}

func (d *Document) joinLineAt(pos Cursor) bool {
	if pos.Row < 0 || pos.Row+1 >= len(d.lines) {
		return false
	}
	left := d.lines[pos.Row]
	right := d.lines[pos.Row+1]
	if pos.Col < 0 {
		pos.Col = 0
	}
	if pos.Col > len(left) {
		pos.Col = len(left)
	}
	merged := append(left, right...)

	newLines := make([][]rune, 0, len(d.lines)-1)
	newLines = append(newLines, d.lines[:pos.Row]...)
	newLines = append(newLines, merged)
	newLines = append(newLines, d.lines[pos.Row+2:]...)
	d.lines = newLines

	d.cursor = Cursor{Row: pos.Row, Col: pos.Col}
	return true
}

func (d *Document) insertTextAt(pos Cursor, text [][]rune) Cursor {
	if len(text) == 0 || pos.Row < 0 || pos.Row >= len(d.lines) {
		return pos
	}
	line := d.lines[pos.Row]
	if pos.Col < 0 {
		pos.Col = 0
	}
	if pos.Col > len(line) {
		pos.Col = len(line)
	}

	if len(text) == 1 {
		newLine := make([]rune, 0, len(line)+len(text[0]))
		newLine = append(newLine, line[:pos.Col]...)
		newLine = append(newLine, text[0]...)
		newLine = append(newLine, line[pos.Col:]...)
		d.lines[pos.Row] = newLine
		return Cursor{Row: pos.Row, Col: pos.Col + len(text[0])}
	}

	firstLine := make([]rune, 0, pos.Col+len(text[0]))
	firstLine = append(firstLine, line[:pos.Col]...)
	firstLine = append(firstLine, text[0]...)

	suffix := line[pos.Col:]
	lastLine := make([]rune, 0, len(text[len(text)-1])+len(suffix))
	lastLine = append(lastLine, text[len(text)-1]...)
	lastLine = append(lastLine, suffix...)

	newLines := make([][]rune, 0, len(d.lines)+len(text)-1)
	newLines = append(newLines, d.lines[:pos.Row]...)
	newLines = append(newLines, firstLine)
	for _, mid := range text[1 : len(text)-1] {
		newLines = append(newLines, append([]rune(nil), mid...))
	}
	newLines = append(newLines, lastLine)
	newLines = append(newLines, d.lines[pos.Row+1:]...)
	d.lines = newLines

	return Cursor{Row: pos.Row + len(text) - 1, Col: len(text[len(text)-1])}
}

func (d *Document) deleteTextRange(start, end Cursor) [][]rune {
	if start.Row < 0 || end.Row >= len(d.lines) || start.Row > end.Row {
		return nil
	}
	if start.Row == end.Row && start.Col >= end.Col {
		return nil
	}

	if start.Row == end.Row {
		line := d.lines[start.Row]
		if start.Col < 0 {
			start.Col = 0
		}
		if end.Col > len(line) {
			end.Col = len(line)
		}
		deleted := make([]rune, end.Col-start.Col)
		copy(deleted, line[start.Col:end.Col])
		newLine := make([]rune, 0, len(line)-(end.Col-start.Col))
		newLine = append(newLine, line[:start.Col]...)
		newLine = append(newLine, line[end.Col:]...)
		d.lines[start.Row] = newLine
		d.cursor = start
		return [][]rune{deleted}
	}

	deleted := make([][]rune, end.Row-start.Row+1)

	firstLine := d.lines[start.Row]
	if start.Col < 0 {
		start.Col = 0
	}
	if start.Col > len(firstLine) {
		start.Col = len(firstLine)
	}
	deleted[0] = make([]rune, len(firstLine)-start.Col)
	copy(deleted[0], firstLine[start.Col:])

	for i := start.Row + 1; i < end.Row; i++ {
		deleted[i-start.Row] = make([]rune, len(d.lines[i]))
		copy(deleted[i-start.Row], d.lines[i])
	}

	lastLine := d.lines[end.Row]
	if end.Col < 0 {
		end.Col = 0
	}
	if end.Col > len(lastLine) {
		end.Col = len(lastLine)
	}
	deleted[len(deleted)-1] = make([]rune, end.Col)
	copy(deleted[len(deleted)-1], lastLine[:end.Col])

	merged := make([]rune, 0, start.Col+len(lastLine)-end.Col)
	merged = append(merged, firstLine[:start.Col]...)
	merged = append(merged, lastLine[end.Col:]...)

	newLines := make([][]rune, 0, len(d.lines)-(end.Row-start.Row))
	newLines = append(newLines, d.lines[:start.Row]...)
	newLines = append(newLines, merged)
	newLines = append(newLines, d.lines[end.Row+1:]...)
	d.lines = newLines

	d.cursor = start
	return deleted
}

func splitLines(data []byte) [][]rune {
	if len(data) == 0 {
		return nil
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	parts := strings.Split(text, "\n")
	lines := make([][]rune, len(parts))
	for i, p := range parts {
		lines[i] = []rune(p)
	}
	return lines
}

func joinLines(lines [][]rune) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = string(l)
	}
	return strings.Join(parts, "\n")
}
