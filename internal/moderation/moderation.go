// Package moderation rewrites free text so it is safe to send to an image
// model as part of a children's illustration prompt.
package moderation

import (
	"regexp"
	"strings"
)

// SafeDefault is returned when there is nothing left to describe.
const SafeDefault = "A magical adventure scene"

// substitution maps an unsafe term to its benign replacement.
type substitution struct {
	term        string
	replacement string
}

// lexicon is matched case-insensitively on whole words. Order is irrelevant
// because matches never overlap.
var lexicon = []substitution{
	{"weapon", "tool"},
	{"weapons", "tools"},
	{"sword", "wand"},
	{"swords", "wands"},
	{"knife", "spoon"},
	{"knives", "spoons"},
	{"sharp", "shiny"},
	{"gun", "flashlight"},
	{"guns", "flashlights"},
	{"fight", "play"},
	{"fighting", "playing"},
	{"fought", "played"},
	{"battle", "contest"},
	{"war", "parade"},
	{"attack", "hug"},
	{"kill", "tickle"},
	{"killed", "tickled"},
	{"blood", "paint"},
	{"bloody", "colorful"},
	{"dead", "sleepy"},
	{"die", "nap"},
	{"hurt", "bump"},
	{"injured", "tired"},
	{"wound", "bandage"},
	{"violent", "lively"},
	{"violence", "excitement"},
	{"scary", "surprising"},
	{"monster", "creature"},
	{"evil", "grumpy"},
	{"danger", "adventure"},
	{"dangerous", "exciting"},
}

var (
	replacements = buildReplacements()
	termPattern  = buildPattern()
)

func buildReplacements() map[string]string {
	m := make(map[string]string, len(lexicon))
	for _, s := range lexicon {
		m[s.term] = s.replacement
	}
	return m
}

func buildPattern() *regexp.Regexp {
	terms := make([]string, 0, len(lexicon))
	for _, s := range lexicon {
		terms = append(terms, regexp.QuoteMeta(s.term))
	}
	return regexp.MustCompile(`\b(` + strings.Join(terms, "|") + `)\b`)
}

// Moderate lower-cases text and replaces every unsafe term with its
// replacement. Empty input yields SafeDefault.
func Moderate(text string) string {
	lowered := strings.ToLower(text)
	out := termPattern.ReplaceAllStringFunc(lowered, func(term string) string {
		return replacements[term]
	})
	out = strings.TrimSpace(out)
	if out == "" {
		return SafeDefault
	}
	return out
}

// Terms returns the unsafe terms Moderate replaces.
func Terms() []string {
	terms := make([]string, len(lexicon))
	for i, s := range lexicon {
		terms[i] = s.term
	}
	return terms
}
