// Package navigate moves the cursor through LSP definition and reference
// results and keeps the jump history behind back/forward.
package navigate

// Jump is one remembered cursor location.
type Jump struct {
	Path string
	Line int
	Col  int
}

// History is a bounded pair of back/forward stacks. A fresh jump clears
// the forward stack, the same way browser history works.
type History struct {
	back    []Jump
	forward []Jump
	limit   int
}

const defaultHistoryLimit = 100

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &History{limit: limit}
}

// Push records origin as a place to come back to and clears the forward
// stack.
func (h *History) Push(origin Jump) {
	h.back = append(h.back, origin)
	if len(h.back) > h.limit {
		h.back = h.back[len(h.back)-h.limit:]
	}
	h.forward = h.forward[:0]
}

// Back pops the previous location, pushing current onto the forward
// stack. Reports false on an empty stack, leaving everything untouched.
func (h *History) Back(current Jump) (Jump, bool) {
	if len(h.back) == 0 {
		return Jump{}, false
	}
	j := h.back[len(h.back)-1]
	h.back = h.back[:len(h.back)-1]
	h.forward = append(h.forward, current)
	return j, true
}

// Forward pops the next location, pushing current back.
func (h *History) Forward(current Jump) (Jump, bool) {
	if len(h.forward) == 0 {
		return Jump{}, false
	}
	j := h.forward[len(h.forward)-1]
	h.forward = h.forward[:len(h.forward)-1]
	h.back = append(h.back, current)
	return j, true
}

func (h *History) BackDepth() int    { return len(h.back) }
func (h *History) ForwardDepth() int { return len(h.forward) }
