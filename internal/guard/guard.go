// Package guard decides whether user submitted text may be sent on to the
// story backends.
//
// The rules are a handful of PII shapes and a fixed
// keyword list. Anything they miss is a known limitation of the filter.
package guard

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Reason identifies the rule that rejected a text.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonEmpty     Reason = "empty"
	ReasonPII       Reason = "pii"
	ReasonBlocklist Reason = "blocklist"
)

// Verdict is the outcome of Inspect.
type Verdict struct {
	Safe   bool
	Reason Reason
	// Rule is the pattern name or keyword that fired.
	Rule string
}

// Guard is a stateless content classifier. It is safe for concurrent use.
type Guard struct {
	patterns []Pattern
	matcher  *goahocorasick.Machine
}

// New builds a Guard from PII patterns and a keyword blocklist. Keywords are
// matched as case-insensitive substrings.
func New(patterns []Pattern, blocklist []string) (*Guard, error) {
	g := &Guard{patterns: slices.Clone(patterns)}

	keywords := lo.Uniq(lo.FilterMap(blocklist, func(w string, _ int) (string, bool) {
		w = strings.ToLower(strings.TrimSpace(w))
		return w, w != ""
	}))
	if len(keywords) == 0 {
		return g, nil
	}
	slices.Sort(keywords)

	runes := make([][]rune, len(keywords))
	for i, w := range keywords {
		runes[i] = []rune(w)
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(runes); err != nil {
		return nil, fmt.Errorf("failed to build keyword matcher: %w", err)
	}
	g.matcher = m
	return g, nil
}

var defaultGuard = sync.OnceValue(func() *Guard {
	g, err := New(DefaultPatterns(), DefaultBlocklist())
	if err != nil {
		panic(err)
	}
	return g
})

// Default returns the shared Guard built from DefaultPatterns and
// DefaultBlocklist.
func Default() *Guard {
	return defaultGuard()
}

// Classify reports whether text is safe using the default Guard.
func Classify(text string) bool {
	return Default().Classify(text)
}

// Classify reports whether text is safe to process.
func (g *Guard) Classify(text string) bool {
	return g.Inspect(text).Safe
}

// Inspect classifies text and reports which rule rejected it.
func (g *Guard) Inspect(text string) Verdict {
	if strings.TrimSpace(text) == "" {
		return Verdict{Reason: ReasonEmpty}
	}

	for _, p := range g.patterns {
		if p.Regex.MatchString(text) {
			return Verdict{Reason: ReasonPII, Rule: p.Name}
		}
	}

	if g.matcher != nil {
		lowered := []rune(strings.Map(unicode.ToLower, text))
		if terms := g.matcher.MultiPatternSearch(lowered, true); len(terms) > 0 {
			return Verdict{Reason: ReasonBlocklist, Rule: string(terms[0].Word)}
		}
	}

	return Verdict{Safe: true}
}
