package httpd

import (
	"strings"

	"dqx0.com/go/serverx/httpd/internal/http1"
)

// Headers is an ordered list of header fields. Insertion order and duplicate
// names are preserved; name lookup is case-insensitive.
type Headers struct {
	fields []http1.Field
}

// NewHeaders returns an empty header list.
func NewHeaders() *Headers {
	return &Headers{}
}

// Add appends a field, keeping any existing fields with the same name.
func (h *Headers) Add(name, value string) *Headers {
	h.fields = append(h.fields, http1.Field{Name: name, Value: value})
	return h
}

// Set replaces every field named name with a single field, appending it when
// none existed.
func (h *Headers) Set(name, value string) *Headers {
	h.Del(name)
	return h.Add(name, value)
}

// Del removes every field named name.
func (h *Headers) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Get returns the first value for name, or "" when absent.
func (h *Headers) Get(name string) string {
	if h == nil {
		return ""
	}
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name, in insertion order.
func (h *Headers) Values(name string) []string {
	if h == nil {
		return nil
	}
	var vv []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			vv = append(vv, f.Value)
		}
	}
	return vv
}

// Len returns the number of fields.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.fields)
}

// Field returns the name and value of the i-th field.
func (h *Headers) Field(i int) (name, value string) {
	f := h.fields[i]
	return f.Name, f.Value
}

// Clone returns a deep copy.
func (h *Headers) Clone() *Headers {
	if h == nil {
		return NewHeaders()
	}
	c := &Headers{fields: make([]http1.Field, len(h.fields))}
	copy(c.fields, h.fields)
	return c
}
