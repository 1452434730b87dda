// Package prompts builds one illustration prompt per narrative page.
//
// Every prompt shares a fixed preamble and suffix. A style is taken from a
// four-entry palette in page order, cycling so that page i uses style i mod 4.
// Page text is moderated before it is embedded, and the character and
// setting hints are extracted once over the whole narrative.
package prompts

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/picturebook/internal/moderation"
	"github.com/jackzampolin/picturebook/internal/pages"
	"github.com/jackzampolin/picturebook/internal/scene"
)

const (
	preamble = "Children's picture book illustration, gentle and friendly, safe for young readers."
	suffix   = "Keep character designs consistent across the whole book. High quality, detailed, warm lighting, no text or lettering in the image."
)

// Style is one entry in the rotating art style palette.
type Style struct {
	Medium      string
	Palette     string
	Composition string
}

// Descriptor renders the art style portion of a prompt.
func (s Style) Descriptor() string {
	return fmt.Sprintf("Art style: %s with %s.", s.Medium, s.Palette)
}

// palette is indexed by page index mod len(palette).
var palette = [...]Style{
	{Medium: "watercolor", Palette: "soft pastel colors", Composition: "wide establishing shot"},
	{Medium: "colored pencil", Palette: "warm earthy tones", Composition: "medium shot"},
	{Medium: "gouache", Palette: "vibrant saturated colors", Composition: "dynamic angle"},
	{Medium: "ink wash", Palette: "a minimal limited palette", Composition: "close-up portrait"},
}

// StyleCount is the length of the style rotation.
const StyleCount = len(palette)

// StyleFor returns the style used for the page at index i (0-based).
func StyleFor(i int) Style {
	return palette[i%StyleCount]
}

// Build returns one prompt per page of body, in page order. The number of
// prompts always equals len(pages.Split(body)).
func Build(body, title string) []string {
	segments := pages.Split(body)
	joined := strings.Join(segments, " ")
	characters := scene.CharacterHints(title, joined)
	setting := scene.SettingHints(title, joined)

	prompts := make([]string, len(segments))
	for i, segment := range segments {
		prompts[i] = compose(StyleFor(i), title, moderation.Moderate(segment), characters, setting)
	}
	return prompts
}

func compose(style Style, title, text, characters, setting string) string {
	parts := []string{
		preamble,
		style.Descriptor(),
		fmt.Sprintf("Composition: %s.", style.Composition),
		fmt.Sprintf("Scene from the story %q: %s", title, text),
	}
	if characters != "" {
		parts = append(parts, characters)
	}
	if setting != "" {
		parts = append(parts, setting)
	}
	parts = append(parts, suffix)
	return strings.Join(parts, " ")
}
