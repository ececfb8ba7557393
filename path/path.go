// Package path parses and builds the dotted, index-suffixed element paths
// used throughout the schema converter and validator.
package path

import (
	"strconv"
	"strings"
	"sync"
)

// ChoiceSuffix is the literal token marking a choice-type path component.
const ChoiceSuffix = "[x]"

// Split breaks a dotted path into its components. It does not strip the
// leading type component; callers that need the bare element path use
// TrimType.
func Split(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

// Join re-assembles path components with dots.
func Join(components ...string) string {
	return strings.Join(components, ".")
}

// TrimType strips the schema's declared root type from the front of a path,
// e.g. TrimType("Patient.contact.name", "Patient") = "contact.name".
func TrimType(p, rootType string) string {
	if p == rootType {
		return ""
	}
	prefix := rootType + "."
	if strings.HasPrefix(p, prefix) {
		return p[len(prefix):]
	}
	return p
}

// IsChoice reports whether a path component ends with the choice suffix.
func IsChoice(component string) bool {
	return strings.HasSuffix(component, ChoiceSuffix)
}

// ChoiceBase returns the component name without its [x] suffix.
func ChoiceBase(component string) string {
	return strings.TrimSuffix(component, ChoiceSuffix)
}

// ExpandedName returns the concrete choice-variant element name for a given
// base ("value") and FHIR type code ("string" -> "valueString").
func ExpandedName(base, typeCode string) string {
	return base + upperFirst(typeCode)
}

// TypeFromExpandedName recovers the type suffix from an expanded choice name
// given the base, e.g. TypeFromExpandedName("valueString", "value") = "String".
func TypeFromExpandedName(name, base string) (string, bool) {
	if !strings.HasPrefix(name, base) || len(name) <= len(base) {
		return "", false
	}
	suffix := name[len(base):]
	if suffix[0] < 'A' || suffix[0] > 'Z' {
		return "", false
	}
	return suffix, true
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// CommonPrefix returns the longest sequence of components shared by a and b,
// compared position by position from the start.
func CommonPrefix(a, b []string) []string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	out := make([]string, i)
	copy(out, a[:i])
	return out
}

// SliceName splits a path component of the form "name:slice" into its base
// name and slice name. ok is false if there is no slice suffix.
func SliceName(component string) (name, slice string, ok bool) {
	idx := strings.IndexByte(component, ':')
	if idx < 0 {
		return component, "", false
	}
	return component[:idx], component[idx+1:], true
}

// Builder provides allocation-light path construction, reused across
// recursive validate calls via a sync.Pool.
type Builder struct {
	buf []byte
}

var builderPool = sync.Pool{
	New: func() any { return &Builder{buf: make([]byte, 0, 256)} },
}

// Acquire returns a pooled Builder. Call Release when done.
func Acquire() *Builder {
	b := builderPool.Get().(*Builder)
	b.buf = b.buf[:0]
	return b
}

// Release returns the Builder to the pool.
func (b *Builder) Release() {
	if b == nil {
		return
	}
	if cap(b.buf) <= 4096 {
		builderPool.Put(b)
	}
}

// WriteField appends a ".field" (or bare "field" if empty) segment.
func (b *Builder) WriteField(name string) {
	if len(b.buf) > 0 {
		b.buf = append(b.buf, '.')
	}
	b.buf = append(b.buf, name...)
}

// WriteIndex appends an "[i]" array index segment.
func (b *Builder) WriteIndex(i int) {
	b.buf = append(b.buf, '[')
	b.buf = strconv.AppendInt(b.buf, int64(i), 10)
	b.buf = append(b.buf, ']')
}

// String returns the path built so far.
func (b *Builder) String() string {
	return string(b.buf)
}

// WithField returns base + ".field" using a pooled builder.
func WithField(base, field string) string {
	b := Acquire()
	defer b.Release()
	b.buf = append(b.buf[:0], base...)
	b.WriteField(field)
	return b.String()
}

// WithIndex returns base + "[i]" using a pooled builder.
func WithIndex(base string, i int) string {
	b := Acquire()
	defer b.Release()
	b.buf = append(b.buf[:0], base...)
	b.WriteIndex(i)
	return b.String()
}
