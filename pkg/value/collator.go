package value

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collator provides locale-aware string ordering for comparison opcodes and
// deduplicating sets. Collators are immutable once built and safe to share
// across values.
type Collator struct {
	locale string
	c      *collate.Collator
}

func NewCollator(locale string) (*Collator, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, err
	}
	return &Collator{locale: locale, c: collate.New(tag)}, nil
}

// NewCaseInsensitiveCollator builds a collator that ignores case for the
// given locale.
func NewCaseInsensitiveCollator(locale string) (*Collator, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, err
	}
	return &Collator{locale: locale, c: collate.New(tag, collate.IgnoreCase)}, nil
}

func (c *Collator) Locale() string { return c.locale }

func (c *Collator) CompareStrings(a, b string) int {
	return c.c.CompareString(a, b)
}
