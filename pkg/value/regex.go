package value

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// PcreRegex wraps a compiled PCRE-style pattern together with the option
// string it was built from.
type PcreRegex struct {
	pattern string
	options string
	re      *regexp2.Regexp
}

// RegexMatch describes a single successful match.
type RegexMatch struct {
	Match string
	// Index is the match position in code points, not bytes.
	Index    int
	Captures []Value
}

// CompileRegex compiles pattern with an option string drawn from "imsx".
func CompileRegex(pattern, options string) (*PcreRegex, error) {
	var flags regexp2.RegexOptions
	for _, opt := range options {
		switch opt {
		case 'i':
			flags |= regexp2.IgnoreCase
		case 'm':
			flags |= regexp2.Multiline
		case 's':
			flags |= regexp2.Singleline
		case 'x':
			flags |= regexp2.IgnorePatternWhitespace
		default:
			return nil, fmt.Errorf("invalid regex option %q", string(opt))
		}
	}
	re, err := regexp2.Compile(pattern, flags)
	if err != nil {
		return nil, err
	}
	return &PcreRegex{pattern: pattern, options: options, re: re}, nil
}

func (r *PcreRegex) Pattern() string { return r.pattern }
func (r *PcreRegex) Options() string { return r.options }

// Clone shares the compiled program; it is immutable after compilation.
func (r *PcreRegex) Clone() *PcreRegex {
	return &PcreRegex{pattern: r.pattern, options: r.options, re: r.re}
}

func (r *PcreRegex) String() string {
	var sb strings.Builder
	sb.WriteByte('/')
	sb.WriteString(r.pattern)
	sb.WriteByte('/')
	sb.WriteString(r.options)
	return sb.String()
}

// MatchString reports whether input contains a match anywhere.
func (r *PcreRegex) MatchString(input string) bool {
	ok, err := r.re.MatchString(input)
	return err == nil && ok
}

// FindFirst returns the first match, or nil when there is none. Unmatched
// capture groups come back as Null elements.
func (r *PcreRegex) FindFirst(input string) *RegexMatch {
	m, err := r.re.FindStringMatch(input)
	if err != nil || m == nil {
		return nil
	}
	groups := m.Groups()
	captures := make([]Value, 0, len(groups)-1)
	for _, g := range groups[1:] {
		if len(g.Captures) == 0 {
			captures = append(captures, Null)
		} else {
			captures = append(captures, NewString(g.String()))
		}
	}
	return &RegexMatch{Match: m.String(), Index: m.Index, Captures: captures}
}
