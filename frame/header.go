package frame

import "strings"

// Header is an ordered collection of STOMP header name/value pairs.
//
// Insertion order is preserved so that serialized frames are deterministic.
// Lookups compare names case-insensitively while the stored spelling is kept
// as the caller wrote it.
type Header struct {
	pairs [][2]string
}

// Get returns the value of the first header with the given name.
func (h *Header) Get(name string) (string, bool) {
	for _, p := range h.pairs {
		if strings.EqualFold(p[0], name) {
			return p[1], true
		}
	}
	return "", false
}

// Value returns the value of the first header with the given name,
// or the empty string if the header is absent.
func (h *Header) Value(name string) string {
	v, _ := h.Get(name)
	return v
}

// Has reports whether a header with the given name is present.
func (h *Header) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Set replaces the value of an existing header or appends a new pair.
func (h *Header) Set(name, value string) {
	for i, p := range h.pairs {
		if strings.EqualFold(p[0], name) {
			h.pairs[i][1] = value
			return
		}
	}
	h.pairs = append(h.pairs, [2]string{name, value})
}

// AddIfAbsent appends the pair only when no header with that name exists yet.
// STOMP 1.2 mandates that the first occurrence of a repeated header wins, so
// the parser builds headers through this method.
func (h *Header) AddIfAbsent(name, value string) {
	if !h.Has(name) {
		h.pairs = append(h.pairs, [2]string{name, value})
	}
}

// Del removes every header with the given name.
func (h *Header) Del(name string) {
	out := h.pairs[:0]
	for _, p := range h.pairs {
		if !strings.EqualFold(p[0], name) {
			out = append(out, p)
		}
	}
	h.pairs = out
}

// Len returns the number of header pairs.
func (h *Header) Len() int {
	return len(h.pairs)
}

// All returns the pairs in insertion order. The returned slice is a copy.
func (h *Header) All() [][2]string {
	out := make([][2]string, len(h.pairs))
	copy(out, h.pairs)
	return out
}

// Clone returns an independent copy of the header collection.
func (h *Header) Clone() Header {
	return Header{pairs: h.All()}
}
