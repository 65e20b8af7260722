package idmangling

import (
	"strings"

	"go-calendar-core/core/errors"
)

const (
	separator   = '/'
	escape      = '\\'
	emptyMarker = 'e'
)

// JoinPath packs tokens into one string. Separators and escape characters
// inside a token are escaped, and an empty token is written as `\e` so that
// an empty list and a list holding one empty token stay distinct.
func JoinPath(tokens ...string) string {
	var b strings.Builder
	for i, token := range tokens {
		if i > 0 {
			b.WriteByte(separator)
		}
		if token == "" {
			b.WriteByte(escape)
			b.WriteByte(emptyMarker)
			continue
		}
		for j := 0; j < len(token); j++ {
			c := token[j]
			if c == separator || c == escape {
				b.WriteByte(escape)
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SplitPath is the inverse of JoinPath. It fails with an INVALID_FORMAT
// error for input JoinPath cannot produce.
func SplitPath(joined string) ([]string, error) {
	tokens := []string{}
	if joined == "" {
		return tokens, nil
	}

	var (
		current  strings.Builder
		hasChars bool
		isEmpty  bool
	)
	flush := func() error {
		switch {
		case isEmpty && hasChars:
			return errors.New("empty-token marker mixed with content")
		case !isEmpty && !hasChars:
			return errors.New("unescaped empty token")
		}
		tokens = append(tokens, current.String())
		current.Reset()
		hasChars, isEmpty = false, false
		return nil
	}

	for i := 0; i < len(joined); i++ {
		c := joined[i]
		switch c {
		case escape:
			if i+1 >= len(joined) {
				return nil, errors.NewFormatError(joined, errors.New("dangling escape"))
			}
			i++
			switch next := joined[i]; next {
			case separator, escape:
				current.WriteByte(next)
				hasChars = true
			case emptyMarker:
				if isEmpty {
					return nil, errors.NewFormatError(joined, errors.New("repeated empty-token marker"))
				}
				isEmpty = true
			default:
				return nil, errors.NewFormatError(joined, errors.New("unknown escape sequence"))
			}
		case separator:
			if err := flush(); err != nil {
				return nil, errors.NewFormatError(joined, err)
			}
		default:
			current.WriteByte(c)
			hasChars = true
		}
	}
	if err := flush(); err != nil {
		return nil, errors.NewFormatError(joined, err)
	}
	return tokens, nil
}
