package render

import (
	"hash/fnv"

	"github.com/rkovacs/medit/internal/document"
)

// Mode says how a line is displayed.
type Mode int

const (
	ModeRaw Mode = iota
	ModeFormatted
)

// Line is one resolved display line.
type Line struct {
	Index int
	Mode  Mode
	Spans []Span
}

type cacheEntry struct {
	hash  uint64
	fence FenceContext
	spans []Span
}

// Resolver decides raw versus formatted per line and caches formatted
// output so a cursor move only re-renders the two lines that changed
// mode.
type Resolver struct {
	renderer *Renderer
	cache    map[int]cacheEntry
}

func NewResolver(r *Renderer) *Resolver {
	return &Resolver{renderer: r, cache: make(map[int]cacheEntry)}
}

// Invalidate drops the whole cache, used on theme changes.
func (res *Resolver) Invalidate() {
	res.cache = make(map[int]cacheEntry)
}

// Resolve returns one display line per buffer line. While editing, the
// cursor line is Raw and everything else Formatted; in dialog modes the
// whole buffer is Formatted.
func (res *Resolver) Resolve(doc *document.Document, editing bool) []Line {
	count := doc.LineCount()
	cursor := doc.Cursor()
	out := make([]Line, count)

	fc := FenceContext{}
	for i := 0; i < count; i++ {
		text := doc.Line(i)
		lineCtx := fc
		if isFenceDelimiter(text) {
			if fc.InFence {
				fc = FenceContext{}
			} else {
				fc = FenceContext{InFence: true, Lang: FenceLang(text)}
			}
		}

		if editing && i == cursor.Row {
			delete(res.cache, i)
			out[i] = Line{Index: i, Mode: ModeRaw, Spans: []Span{{Text: text, Style: styleDefault}}}
			continue
		}
		out[i] = Line{Index: i, Mode: ModeFormatted, Spans: res.formatted(i, text, lineCtx)}
	}

	// Lines past the end of a shrunk buffer must not linger in cache.
	for i := range res.cache {
		if i >= count {
			delete(res.cache, i)
		}
	}
	return out
}

// formatted returns the cached spans for a line when neither its content
// nor its fence context changed, rendering otherwise.
func (res *Resolver) formatted(index int, text string, fc FenceContext) []Span {
	h := hashLine(text)
	if e, ok := res.cache[index]; ok && e.hash == h && e.fence == fc {
		return e.spans
	}
	spans := res.renderer.Render(text, fc)
	res.cache[index] = cacheEntry{hash: h, fence: fc, spans: spans}
	return spans
}

func hashLine(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}
