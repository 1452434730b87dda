package story

import (
	"errors"
	"fmt"
)

// ErrInvalidCustomization is returned by Validate for an unknown enum value.
var ErrInvalidCustomization = errors.New("invalid customization")

// AgeGroup is the target reader age band.
type AgeGroup string

const (
	AgeToddlers     AgeGroup = "toddlers"
	AgePreschool    AgeGroup = "preschool"
	AgeEarlyReaders AgeGroup = "early-readers"
	AgeYoungReaders AgeGroup = "young-readers"
	AgeAllAges      AgeGroup = "all-ages"
)

// Theme is the story's central theme.
type Theme string

const (
	ThemeFriendship Theme = "friendship"
	ThemeAdventure  Theme = "adventure"
	ThemeFamily     Theme = "family"
	ThemeNature     Theme = "nature"
	ThemeMagic      Theme = "magic"
	ThemeLearning   Theme = "learning"
	ThemeKindness   Theme = "kindness"
	ThemeCourage    Theme = "courage"
)

// Length controls how many pages are requested.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// Tone is the narrative voice.
type Tone string

const (
	TonePlayful     Tone = "playful"
	ToneGentle      Tone = "gentle"
	ToneExciting    Tone = "exciting"
	ToneEducational Tone = "educational"
)

// Enumerations in display order.
var (
	AgeGroups = []AgeGroup{AgeToddlers, AgePreschool, AgeEarlyReaders, AgeYoungReaders, AgeAllAges}
	Themes    = []Theme{ThemeFriendship, ThemeAdventure, ThemeFamily, ThemeNature, ThemeMagic, ThemeLearning, ThemeKindness, ThemeCourage}
	Lengths   = []Length{LengthShort, LengthMedium, LengthLong}
	Tones     = []Tone{TonePlayful, ToneGentle, ToneExciting, ToneEducational}
)

// Defaults applied to absent fields.
const (
	DefaultAgeGroup = AgeAllAges
	DefaultTheme    = ThemeAdventure
	DefaultLength   = LengthMedium
	DefaultTone     = TonePlayful
)

// Customization holds the caller's optional story choices.
// The zero value means "all defaults".
type Customization struct {
	AgeGroup AgeGroup `json:"age_group,omitempty"`
	Theme    Theme    `json:"theme,omitempty"`
	Length   Length   `json:"length,omitempty"`
	Tone     Tone     `json:"tone,omitempty"`
}

// WithDefaults returns a copy with every empty field set to its default.
// A nil receiver yields all defaults.
func (c *Customization) WithDefaults() Customization {
	var out Customization
	if c != nil {
		out = *c
	}
	if out.AgeGroup == "" {
		out.AgeGroup = DefaultAgeGroup
	}
	if out.Theme == "" {
		out.Theme = DefaultTheme
	}
	if out.Length == "" {
		out.Length = DefaultLength
	}
	if out.Tone == "" {
		out.Tone = DefaultTone
	}
	return out
}

// Validate rejects values outside the known enumerations. Empty fields are valid.
func (c *Customization) Validate() error {
	if c == nil {
		return nil
	}
	if c.AgeGroup != "" && !contains(AgeGroups, c.AgeGroup) {
		return fmt.Errorf("%w: unknown age_group %q", ErrInvalidCustomization, c.AgeGroup)
	}
	if c.Theme != "" && !contains(Themes, c.Theme) {
		return fmt.Errorf("%w: unknown theme %q", ErrInvalidCustomization, c.Theme)
	}
	if c.Length != "" && !contains(Lengths, c.Length) {
		return fmt.Errorf("%w: unknown length %q", ErrInvalidCustomization, c.Length)
	}
	if c.Tone != "" && !contains(Tones, c.Tone) {
		return fmt.Errorf("%w: unknown tone %q", ErrInvalidCustomization, c.Tone)
	}
	return nil
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Reading-level guidance per age group.
var ageDescriptions = map[AgeGroup]string{
	AgeToddlers:     "toddlers aged 2-4: very simple words, lots of repetition, one idea per sentence",
	AgePreschool:    "preschoolers aged 4-6: simple sentences, familiar words, gentle rhythm",
	AgeEarlyReaders: "early readers aged 6-8: short sentences they can read aloud, a few new words",
	AgeYoungReaders: "young readers aged 8-12: richer vocabulary and a clear story arc",
	AgeAllAges:      "readers of all ages: warm, accessible language a family can share",
}

var toneDirectives = map[Tone]string{
	TonePlayful:     "Keep it playful and fun, with a little humor.",
	ToneGentle:      "Keep it gentle and soothing, like a bedtime story.",
	ToneExciting:    "Make it exciting, with a sense of wonder and momentum, never scary.",
	ToneEducational: "Weave in one simple lesson or fact children can learn from.",
}

// AgeDescription returns the reading-level guidance for the age group.
func (c Customization) AgeDescription() string {
	if d, ok := ageDescriptions[c.AgeGroup]; ok {
		return d
	}
	return ageDescriptions[DefaultAgeGroup]
}

// ToneDirective returns the tone instruction for the story prompt.
func (c Customization) ToneDirective() string {
	if d, ok := toneDirectives[c.Tone]; ok {
		return d
	}
	return toneDirectives[DefaultTone]
}

// PageTarget returns the requested page count: short 4, medium 5, long 6.
func (c Customization) PageTarget() int {
	switch c.Length {
	case LengthShort:
		return 4
	case LengthLong:
		return 6
	default:
		return 5
	}
}
