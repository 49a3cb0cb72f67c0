// Package langmatch decides whether a detected BCP-47 language already
// satisfies a requested target language, generalizing the teacher's
// hand-rolled string-prefix heuristic (internal/controller.isLangMatch)
// into a proper tag match via golang.org/x/text/language.
package langmatch

import (
	"strings"

	"golang.org/x/text/language"
)

// Match reports whether detected (e.g. "en-US", "cmn-Hans-CN") already
// satisfies target (e.g. "en", "zh") at the base-language level, the
// same level of precision the spec's source/target pairing needs: a
// transcript detected as en-US needs no translation for a "en" output,
// but cmn (Mandarin) does satisfy a "zh" output.
func Match(detected, target string) bool {
	if detected == "" || target == "" {
		return false
	}
	dt, err := language.Parse(detected)
	if err != nil {
		return false
	}
	tt, err := language.Parse(target)
	if err != nil {
		return false
	}
	db, dConf := dt.Base()
	tb, tConf := tt.Base()
	_ = dConf
	_ = tConf
	return db.String() == tb.String()
}

// Canonicalize normalizes a language tag to its base-language string
// ("en-US" -> "en"), falling back to a lowercase copy of the input when
// it cannot be parsed as a BCP-47 tag.
func Canonicalize(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	base, _ := t.Base()
	return base.String()
}
