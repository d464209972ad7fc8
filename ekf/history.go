package ekf

// history is a fixed-capacity ring of the most recent estimates.
type history struct {
	buf  []Attitude
	next int
	full bool
}

func newHistory(n int) *history {
	return &history{buf: make([]Attitude, n)}
}

func (h *history) push(a Attitude) {
	h.buf[h.next] = a
	h.next++
	if h.next == len(h.buf) {
		h.next = 0
		h.full = true
	}
}

func (h *history) len() int {
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// latest returns the newest entry and whether there is one.
func (h *history) latest() (Attitude, bool) {
	if h.len() == 0 {
		return Attitude{}, false
	}
	i := h.next - 1
	if i < 0 {
		i = len(h.buf) - 1
	}
	return h.buf[i], true
}

// list returns a copy of the entries, oldest first.
func (h *history) list() []Attitude {
	out := make([]Attitude, 0, h.len())
	if h.full {
		out = append(out, h.buf[h.next:]...)
	}
	return append(out, h.buf[:h.next]...)
}

func (h *history) clear() {
	h.next = 0
	h.full = false
}
