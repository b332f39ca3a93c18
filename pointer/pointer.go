// Package pointer implements RFC 6901 JSON Pointers as ordered token
// sequences. Pointers are kept as tokens internally and only serialised at
// the provenance boundary, so escaping happens in exactly one place.
package pointer

import (
	"fmt"
	"strconv"
	"strings"
)

// Pointer is a parsed JSON Pointer. The zero value addresses the document root.
type Pointer []string

var (
	escaper   = strings.NewReplacer("~", "~0", "/", "~1")
	unescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

// Escape encodes a single reference token.
func Escape(token string) string {
	return escaper.Replace(token)
}

// Unescape decodes a single reference token. It rejects "~" sequences other
// than "~0" and "~1".
func Unescape(token string) (string, error) {
	for i := 0; i < len(token); i++ {
		if token[i] != '~' {
			continue
		}
		if i+1 >= len(token) || (token[i+1] != '0' && token[i+1] != '1') {
			return "", fmt.Errorf("invalid escape sequence at offset %d in %q", i, token)
		}
	}
	return unescaper.Replace(token), nil
}

// Parse decodes the string form of a pointer. The empty string is the root.
func Parse(s string) (Pointer, error) {
	if s == "" {
		return Pointer{}, nil
	}
	if s[0] != '/' {
		return nil, fmt.Errorf("pointer %q must start with '/'", s)
	}
	raw := strings.Split(s[1:], "/")
	p := make(Pointer, 0, len(raw))
	for _, tok := range raw {
		decoded, err := Unescape(tok)
		if err != nil {
			return nil, fmt.Errorf("pointer %q: %w", s, err)
		}
		p = append(p, decoded)
	}
	return p, nil
}

// MustParse is Parse for constant pointers in tests and tables.
func MustParse(s string) Pointer {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String serialises the pointer, escaping each token.
func (p Pointer) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, tok := range p {
		b.WriteByte('/')
		b.WriteString(Escape(tok))
	}
	return b.String()
}

// Append returns a new pointer with token added. The receiver is not modified.
func (p Pointer) Append(token string) Pointer {
	out := make(Pointer, len(p), len(p)+1)
	copy(out, p)
	return append(out, token)
}

// AppendIndex appends an array index token.
func (p Pointer) AppendIndex(i int) Pointer {
	return p.Append(strconv.Itoa(i))
}

// Parent returns the pointer without its last token. The root's parent is
// the root.
func (p Pointer) Parent() Pointer {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1:len(p)-1]
}

// Last returns the final token, or "" for the root.
func (p Pointer) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Pointer) HasPrefix(prefix Pointer) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// IsIndex reports whether token is a canonical non-negative array index
// ("0", "1", ... with no leading zeros).
func IsIndex(token string) bool {
	if token == "" {
		return false
	}
	if len(token) > 1 && token[0] == '0' {
		return false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return false
		}
	}
	return true
}
