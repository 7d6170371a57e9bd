// Package render turns buffer lines into styled spans. The cursor line
// is shown raw while every other line gets the formatted Markdown view.
package render

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/gdamore/tcell/v2"
)

// Span is a run of text drawn with one style.
type Span struct {
	Text  string
	Style tcell.Style
}

// FenceContext tells the renderer whether a line sits inside a fenced
// code block, and which language the fence declared.
type FenceContext struct {
	InFence bool
	Lang    string
}

// Renderer formats a single line of Markdown. It is a pure function of
// the line text and the fence context, so output is safely cacheable.
type Renderer struct {
	style *chroma.Style
}

// NewRenderer builds a renderer using the named chroma style, falling
// back to the default style when the name is unknown.
func NewRenderer(theme string) *Renderer {
	s := styles.Get(theme)
	if s == nil {
		s = styles.Fallback
	}
	return &Renderer{style: s}
}

var (
	styleDefault    = tcell.StyleDefault
	styleDim        = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleBold       = tcell.StyleDefault.Bold(true)
	styleItalic     = tcell.StyleDefault.Italic(true)
	styleCode       = tcell.StyleDefault.Foreground(tcell.ColorAqua)
	styleLink       = tcell.StyleDefault.Foreground(tcell.ColorBlue).Underline(true)
	styleQuote      = tcell.StyleDefault.Foreground(tcell.ColorGreen).Italic(true)
	styleCheckbox   = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleListMarker = tcell.StyleDefault.Foreground(tcell.ColorFuchsia)

	headingStyles = []tcell.Style{
		tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true),
		tcell.StyleDefault.Foreground(tcell.ColorOrange).Bold(true),
		tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true),
		tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true),
		tcell.StyleDefault.Foreground(tcell.ColorBlue).Bold(true),
		tcell.StyleDefault.Foreground(tcell.ColorPurple).Bold(true),
	}
)

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+`)
	ruleRe     = regexp.MustCompile(`^\s*(-{3,}|\*{3,}|_{3,})\s*$`)
	checkboxRe = regexp.MustCompile(`^(\s*)- \[( |x|X)\] `)
	listRe     = regexp.MustCompile(`^(\s*)([-*+]|\d+\.) `)
)

// Render formats one line. Fence delimiters come out dimmed, fence
// bodies syntax highlighted, everything else gets the Markdown inline
// treatment.
func (r *Renderer) Render(text string, fc FenceContext) []Span {
	if isFenceDelimiter(text) {
		return []Span{{Text: text, Style: styleDim}}
	}
	if fc.InFence {
		return r.highlightCode(text, fc.Lang)
	}
	if text == "" {
		return nil
	}

	if m := headingRe.FindStringSubmatch(text); m != nil {
		level := len(m[1])
		return []Span{{Text: text, Style: headingStyles[level-1]}}
	}
	if ruleRe.MatchString(text) {
		width := utf8.RuneCountInString(text)
		if width < 3 {
			width = 3
		}
		return []Span{{Text: strings.Repeat("─", width), Style: styleDim}}
	}
	if m := checkboxRe.FindStringSubmatch(text); m != nil {
		box := "☐"
		if m[2] == "x" || m[2] == "X" {
			box = "☑"
		}
		rest := text[len(m[0]):]
		spans := []Span{{Text: m[1] + box + " ", Style: styleCheckbox}}
		return append(spans, renderInline(rest)...)
	}
	if strings.HasPrefix(strings.TrimLeft(text, " "), "> ") {
		return []Span{{Text: text, Style: styleQuote}}
	}
	if m := listRe.FindStringSubmatch(text); m != nil {
		rest := text[len(m[0]):]
		spans := []Span{{Text: m[1] + "• ", Style: styleListMarker}}
		return append(spans, renderInline(rest)...)
	}
	return renderInline(text)
}

// isFenceDelimiter reports whether the line opens or closes a fenced
// code block.
func isFenceDelimiter(text string) bool {
	return strings.HasPrefix(strings.TrimLeft(text, " "), "```")
}

// FenceLang extracts the info string from a fence opener, empty when
// none was given.
func FenceLang(text string) string {
	t := strings.TrimLeft(text, " ")
	if !strings.HasPrefix(t, "```") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(t, "```"))
}

var linkRe = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)

// renderInline handles emphasis, inline code, and links. Anything that
// cannot be parsed falls through as literal text.
func renderInline(text string) []Span {
	var spans []Span
	rest := text
	for rest != "" {
		loc := linkRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			spans = append(spans, renderEmphasis(rest)...)
			break
		}
		if loc[0] > 0 {
			spans = append(spans, renderEmphasis(rest[:loc[0]])...)
		}
		label := rest[loc[2]:loc[3]]
		if label == "" {
			label = rest[loc[4]:loc[5]]
		}
		spans = append(spans, Span{Text: label, Style: styleLink})
		rest = rest[loc[1]:]
	}
	return spans
}

// renderEmphasis walks the text splitting out `code`, **bold** and
// *italic* runs.
func renderEmphasis(text string) []Span {
	var spans []Span
	runes := []rune(text)
	plain := make([]rune, 0, len(runes))
	flush := func() {
		if len(plain) > 0 {
			spans = append(spans, Span{Text: string(plain), Style: styleDefault})
			plain = plain[:0]
		}
	}

	for i := 0; i < len(runes); {
		switch {
		case runes[i] == '`':
			if end := indexRune(runes, i+1, '`'); end >= 0 {
				flush()
				spans = append(spans, Span{Text: string(runes[i+1 : end]), Style: styleCode})
				i = end + 1
				continue
			}
		case i+1 < len(runes) && runes[i] == '*' && runes[i+1] == '*':
			if end := indexPair(runes, i+2); end >= 0 {
				flush()
				spans = append(spans, Span{Text: string(runes[i+2 : end]), Style: styleBold})
				i = end + 2
				continue
			}
		case runes[i] == '*':
			if end := indexRune(runes, i+1, '*'); end >= 0 && end > i+1 {
				flush()
				spans = append(spans, Span{Text: string(runes[i+1 : end]), Style: styleItalic})
				i = end + 1
				continue
			}
		}
		plain = append(plain, runes[i])
		i++
	}
	flush()
	return spans
}

func indexRune(runes []rune, from int, r rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// indexPair finds the next "**" at or after from.
func indexPair(runes []rune, from int) int {
	for i := from; i+1 < len(runes); i++ {
		if runes[i] == '*' && runes[i+1] == '*' {
			return i
		}
	}
	return -1
}

// highlightCode runs the line through chroma. Unknown languages and
// lexer failures fall back to a plain dim span rather than failing the
// frame.
func (r *Renderer) highlightCode(text, lang string) []Span {
	if text == "" {
		return nil
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		return []Span{{Text: text, Style: styleDim}}
	}
	it, err := lexer.Tokenise(nil, text)
	if err != nil {
		return []Span{{Text: text, Style: styleDefault}}
	}
	var spans []Span
	for tok := it(); tok != chroma.EOF; tok = it() {
		if tok.Value == "" {
			continue
		}
		spans = append(spans, Span{Text: tok.Value, Style: r.tokenStyle(tok.Type)})
	}
	if len(spans) == 0 {
		return []Span{{Text: text, Style: styleDefault}}
	}
	return spans
}

// tokenStyle maps a chroma token type to a terminal style using the
// configured chroma style.
func (r *Renderer) tokenStyle(t chroma.TokenType) tcell.Style {
	entry := r.style.Get(t)
	st := tcell.StyleDefault
	if entry.Colour.IsSet() {
		st = st.Foreground(tcell.NewRGBColor(
			int32(entry.Colour.Red()),
			int32(entry.Colour.Green()),
			int32(entry.Colour.Blue()),
		))
	}
	if entry.Bold == chroma.Yes {
		st = st.Bold(true)
	}
	if entry.Italic == chroma.Yes {
		st = st.Italic(true)
	}
	if entry.Underline == chroma.Yes {
		st = st.Underline(true)
	}
	return st
}
