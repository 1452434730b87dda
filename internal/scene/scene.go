// Package scene derives short character and setting hints from narrative
// text so illustrations stay visually consistent across pages.
package scene

import (
	"regexp"
	"strings"
)

// maxHints caps how many keywords a hint clause mentions.
const maxHints = 3

// keywordSet is an ordered list of keywords matched as whole words.
type keywordSet struct {
	label    string
	keywords []string
	patterns []*regexp.Regexp
}

func newKeywordSet(label string, groups ...[]string) keywordSet {
	ks := keywordSet{label: label}
	for _, g := range groups {
		for _, kw := range g {
			ks.keywords = append(ks.keywords, kw)
			ks.patterns = append(ks.patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
		}
	}
	return ks
}

var characterKeywords = newKeywordSet("Main characters",
	[]string{"little", "small", "tiny", "big", "giant", "tall"},
	[]string{
		"girl", "boy", "child", "children", "baby", "mom", "dad", "grandma", "grandpa",
		"sister", "brother", "friend", "dog", "puppy", "cat", "kitten", "bunny", "rabbit",
		"bear", "bird", "owl", "fox", "mouse", "horse", "dragon", "unicorn", "fairy",
	},
	[]string{"red", "blue", "yellow", "green", "purple", "pink", "orange", "golden", "white", "brown"},
)

var settingKeywords = newKeywordSet("Setting",
	[]string{
		"forest", "woods", "garden", "park", "beach", "ocean", "sea", "lake", "river",
		"mountain", "meadow", "field", "castle", "house", "home", "kitchen", "backyard",
		"school", "village", "city", "island", "cave", "sky",
	},
	[]string{"magical", "magic", "enchanted", "sparkling", "glowing", "rainbow", "starlit"},
	[]string{
		"morning", "afternoon", "evening", "night", "sunrise", "sunset",
		"sunny", "rainy", "snowy", "cloudy", "starry", "windy",
	},
)

// CharacterHints returns a clause naming up to three character descriptors
// found in title and text, or "" when none match.
func CharacterHints(title, text string) string {
	return characterKeywords.hint(title, text)
}

// SettingHints returns a clause naming up to three setting descriptors
// found in title and text, or "" when none match.
func SettingHints(title, text string) string {
	return settingKeywords.hint(title, text)
}

func (ks keywordSet) hint(title, text string) string {
	matches := ks.match(strings.ToLower(title + " " + text))
	if len(matches) == 0 {
		return ""
	}
	return ks.label + ": " + strings.Join(matches, ", ") + "."
}

// match returns keywords present in s, in table order, capped at maxHints.
func (ks keywordSet) match(s string) []string {
	var found []string
	for i, p := range ks.patterns {
		if !p.MatchString(s) {
			continue
		}
		found = append(found, ks.keywords[i])
		if len(found) == maxHints {
			break
		}
	}
	return found
}
