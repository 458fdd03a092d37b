package task

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUndefinedVariable marks a reference to a variable that is not bound.
	ErrUndefinedVariable = errors.New("undefined variable")
	// ErrMalformedReference marks a `$` that does not start a valid reference.
	ErrMalformedReference = errors.New("malformed variable reference")
)

// SubstitutionError reports why a template could not be resolved.
type SubstitutionError struct {
	Kind     error
	Template string
	Name     string
	Offset   int
}

func (e *SubstitutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Name != "" {
		return fmt.Sprintf("%s %q at offset %d in %q", e.Kind.Error(), e.Name, e.Offset, e.Template)
	}
	return fmt.Sprintf("%s at offset %d in %q", e.Kind.Error(), e.Offset, e.Template)
}

func (e *SubstitutionError) Unwrap() error { return e.Kind }

// Substitute replaces every $NAME, ${NAME} and ${NAME:default} reference in
// s with its value from vars. `\$` and `\\` are escapes; other backslashes are
// kept as is. Unbound references without a default fail the whole call.
func Substitute(s string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && (s[i+1] == '$' || s[i+1] == '\\'):
			b.WriteByte(s[i+1])
			i += 2

		case c == '$' && i+1 < len(s) && s[i+1] == '{':
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				return "", &SubstitutionError{Kind: ErrMalformedReference, Template: s, Offset: i}
			}
			body := s[i+2 : i+2+end]
			name, def, hasDef := strings.Cut(body, ":")
			if name == "" {
				return "", &SubstitutionError{Kind: ErrMalformedReference, Template: s, Offset: i}
			}
			v, ok := vars[name]
			switch {
			case ok:
				b.WriteString(v)
			case hasDef:
				b.WriteString(def)
			default:
				return "", &SubstitutionError{Kind: ErrUndefinedVariable, Template: s, Name: name, Offset: i}
			}
			i += end + 3

		case c == '$':
			j := i + 1
			for j < len(s) && isNameByte(s[j]) {
				j++
			}
			if j == i+1 {
				return "", &SubstitutionError{Kind: ErrMalformedReference, Template: s, Offset: i}
			}
			name := s[i+1 : j]
			v, ok := vars[name]
			if !ok {
				return "", &SubstitutionError{Kind: ErrUndefinedVariable, Template: s, Name: name, Offset: i}
			}
			b.WriteString(v)
			i = j

		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func isNameByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
