package editor

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/rkovacs/medit/internal/lsp"
	"github.com/rkovacs/medit/internal/render"
)

var (
	styleStatus      = tcell.StyleDefault.Reverse(true)
	styleGutter      = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleGutterError = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleGutterWarn  = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	stylePopup       = tcell.StyleDefault.Background(tcell.ColorDarkSlateGray).Foreground(tcell.ColorWhite)
	stylePopupSel    = tcell.StyleDefault.Background(tcell.ColorWhite).Foreground(tcell.ColorBlack)
	styleDialog      = tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorWhite)
	styleDialogErr   = tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorRed)
	styleDialogInfo  = tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorYellow)
	styleCurrentLine = tcell.StyleDefault.Background(tcell.NewHexColor(0x202020))
	styleSelection   = tcell.StyleDefault.Background(tcell.ColorNavy)
)

// Render paints the whole frame: buffer, gutter, status line, and any
// popup or dialog on top.
func (e *Editor) Render(s tcell.Screen) {
	w, h := s.Size()
	if h < 2 || w < 2 {
		return
	}
	e.viewHeight = h - 1
	s.Clear()

	lines := e.resolver.Resolve(e.doc, e.mode == ModeEdit)
	gutter := e.gutterWidth()
	cursor := e.doc.Cursor()
	selStart, selEnd, hasSel := e.doc.Selection()

	for y := 0; y < e.viewHeight; y++ {
		idx := e.scroll + y
		if idx >= len(lines) {
			break
		}
		lineStyle := tcell.StyleDefault
		if e.cfg.Editor.CurrentLineHighlight && e.mode == ModeEdit && idx == cursor.Row {
			lineStyle = styleCurrentLine
			for x := gutter; x < w; x++ {
				s.SetContent(x, y, ' ', nil, lineStyle)
			}
		}
		// Selection bounds are rune offsets into the drawn text. Exact on
		// the raw cursor line; formatted lines highlight display columns.
		selA, selB := -1, -1
		if hasSel && idx >= selStart.Row && idx <= selEnd.Row {
			selA, selB = 0, int(^uint(0)>>1)
			if idx == selStart.Row {
				selA = selStart.Col
			}
			if idx == selEnd.Row {
				selB = selEnd.Col
			}
		}
		e.drawGutter(s, y, idx, gutter)
		e.drawSpans(s, gutter, y, w, lines[idx].Spans, lineStyle, selA, selB)
	}

	e.drawStatusLine(s, w, h-1)
	if e.popup.active {
		e.drawPopup(s, w, gutter)
	}

	if e.mode == ModeEdit {
		s.ShowCursor(gutter+e.displayCol(cursor.Row, cursor.Col), cursor.Row-e.scroll)
	} else {
		s.HideCursor()
	}
	// Dialogs place their own input cursor.
	switch e.mode {
	case ModeQuitConfirm:
		e.drawDialog(s, w, h, "unsaved changes, quit without saving? (y/n)", "", "", styleDialogErr)
		s.HideCursor()
	case ModeSaveAs:
		e.drawDialog(s, w, h, "save as: ", string(e.input), "", styleDialogErr)
	case ModeGotoLine:
		e.drawDialog(s, w, h, "go to line: ", string(e.input), "", styleDialogErr)
	case ModeQuery:
		e.drawDialog(s, w, h, "query: ", string(e.input), e.queryErr, styleDialogErr)
	case ModeSearch:
		e.drawDialog(s, w, h, "find: ", string(e.input), e.searchInfo, styleDialogInfo)
	}
	s.Show()
}

func (e *Editor) gutterWidth() int {
	if !e.showLineNumbers {
		return 0
	}
	digits := len(fmt.Sprint(e.doc.LineCount()))
	if digits < 3 {
		digits = 3
	}
	return digits + 2
}

func (e *Editor) drawGutter(s tcell.Screen, y, idx, gutter int) {
	if gutter == 0 {
		return
	}
	st := styleGutter
	if d, ok := e.diags.MostSevere(e.doc.Path(), idx, e.doc.Version()); ok {
		if severityOf(d) == lsp.SeverityError {
			st = styleGutterError
		} else {
			st = styleGutterWarn
		}
	}
	num := fmt.Sprintf("%*d ", gutter-1, idx+1)
	for x, r := range num {
		s.SetContent(x, y, r, nil, st)
	}
}

func severityOf(d lsp.Diagnostic) int {
	if d.Severity == 0 {
		return lsp.SeverityError
	}
	return d.Severity
}

func (e *Editor) drawSpans(s tcell.Screen, x, y, w int, spans []render.Span, base tcell.Style, selA, selB int) {
	tab := e.cfg.Editor.TabWidth
	if tab < 1 {
		tab = 4
	}
	idx := 0
	for _, span := range spans {
		st := span.Style
		if base != tcell.StyleDefault && st == tcell.StyleDefault {
			st = base
		}
		for _, r := range span.Text {
			if x >= w {
				return
			}
			cell := st
			if selA >= 0 && idx >= selA && idx < selB {
				cell = styleSelection
			}
			idx++
			if r == '\t' {
				next := ((x + tab) / tab) * tab
				for ; x < next && x < w; x++ {
					s.SetContent(x, y, ' ', nil, cell)
				}
				continue
			}
			s.SetContent(x, y, r, nil, cell)
			x++
		}
	}
}

// displayCol maps a rune column to a screen column, expanding tabs.
func (e *Editor) displayCol(row, col int) int {
	tab := e.cfg.Editor.TabWidth
	if tab < 1 {
		tab = 4
	}
	line := []rune(e.doc.Line(row))
	x := 0
	for i := 0; i < col && i < len(line); i++ {
		if line[i] == '\t' {
			x = ((x + tab) / tab) * tab
			continue
		}
		x++
	}
	return x
}

func (e *Editor) drawStatusLine(s tcell.Screen, w, y int) {
	name := e.doc.Path()
	if name == "" {
		name = "[scratch]"
	}
	if e.doc.Dirty() {
		name += " [+]"
	}
	left := " " + name
	if e.gitBranch != "" {
		left += "   " + e.gitBranch
	}
	if msg := e.statusMessage(); msg != "" {
		left += "  | " + msg
	}

	c := e.doc.Cursor()
	right := fmt.Sprintf("Ln %d, Col %d ", c.Row+1, c.Col+1)
	if errs, warns := e.diags.Counts(e.doc.Path(), e.doc.Version()); errs+warns > 0 {
		right = fmt.Sprintf("E:%d W:%d  %s", errs, warns, right)
	}

	pad := w - len([]rune(left)) - len([]rune(right))
	if pad < 1 {
		pad = 1
	}
	text := left + strings.Repeat(" ", pad) + right
	x := 0
	for _, r := range text {
		if x >= w {
			break
		}
		s.SetContent(x, y, r, nil, styleStatus)
		x++
	}
	for ; x < w; x++ {
		s.SetContent(x, y, ' ', nil, styleStatus)
	}
}

func (e *Editor) drawPopup(s tcell.Screen, w, gutter int) {
	const maxVisible = 8
	items := e.popup.items
	if len(items) == 0 {
		return
	}
	width := 0
	for _, it := range items {
		if l := len([]rune(it.Label)); l > width {
			width = l
		}
	}
	width += 2
	if width > w/2 {
		width = w / 2
	}

	x := gutter + e.popup.startCol
	if x+width > w {
		x = w - width
	}
	if x < 0 {
		x = 0
	}
	y := e.popup.row - e.scroll + 1

	first := 0
	if e.popup.selected >= maxVisible {
		first = e.popup.selected - maxVisible + 1
	}
	for i := 0; i < maxVisible && first+i < len(items); i++ {
		it := items[first+i]
		st := stylePopup
		if first+i == e.popup.selected {
			st = stylePopupSel
		}
		label := " " + it.Label
		col := x
		for _, r := range label {
			if col >= x+width {
				break
			}
			s.SetContent(col, y+i, r, nil, st)
			col++
		}
		for ; col < x+width; col++ {
			s.SetContent(col, y+i, ' ', nil, st)
		}
	}
}

func (e *Editor) drawDialog(s tcell.Screen, w, h int, prompt, input, msg string, msgStyle tcell.Style) {
	width := w * 2 / 3
	if width < 20 {
		width = w - 2
	}
	x := (w - width) / 2
	y := h / 3

	rows := 1
	if msg != "" {
		rows = 2
	}
	for dy := 0; dy < rows; dy++ {
		for dx := 0; dx < width; dx++ {
			s.SetContent(x+dx, y+dy, ' ', nil, styleDialog)
		}
	}
	col := x + 1
	for _, r := range prompt + input {
		if col >= x+width-1 {
			break
		}
		s.SetContent(col, y, r, nil, styleDialog)
		col++
	}
	s.ShowCursor(col, y)
	if msg != "" {
		col = x + 1
		for _, r := range msg {
			if col >= x+width-1 {
				break
			}
			s.SetContent(col, y+1, r, nil, msgStyle)
			col++
		}
	}
}

// scrollToCursor keeps the cursor inside the viewport.
func (e *Editor) scrollToCursor() {
	c := e.doc.Cursor()
	if c.Row < e.scroll {
		e.scroll = c.Row
	}
	if e.viewHeight > 0 && c.Row >= e.scroll+e.viewHeight {
		e.scroll = c.Row - e.viewHeight + 1
	}
	if e.scroll < 0 {
		e.scroll = 0
	}
}
