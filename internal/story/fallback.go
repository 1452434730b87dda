package story

import "github.com/jackzampolin/picturebook/internal/pages"

type fallbackStory struct {
	title    string
	segments []string
}

// Pre-written stories used when the text provider is unavailable.
// Themes without an entry use the adventure story.
var fallbacks = map[Theme]fallbackStory{
	ThemeAdventure: {
		title: "The Magical Adventure",
		segments: []string{
			"Once upon a time, a curious little explorer found a shimmering map tucked inside an old storybook. The map glowed softly and pointed toward the hills beyond the village.",
			"Following the map, the explorer crossed a bubbling brook and walked through a meadow full of singing flowers. A friendly rabbit hopped alongside to show the way.",
			"At the top of the tallest hill stood a tiny door in a giant oak tree. When the explorer knocked, the door swung open to reveal a room full of twinkling lights.",
			"Inside, the forest animals were having a party to celebrate new friends. The explorer danced until the stars came out, then walked home with a heart full of wonder.",
		},
	},
	ThemeFriendship: {
		title: "The Friendship Garden",
		segments: []string{
			"In a sunny corner of the neighborhood, two new neighbors discovered an empty patch of earth. Neither of them knew how to grow a garden alone.",
			"They decided to try together, sharing seeds, watering cans, and silly songs. Every morning they checked to see if anything had sprouted.",
			"One day a storm flattened the little green shoots, and both friends felt sad. They held hands and promised to start again.",
			"By summer the garden was bursting with sunflowers taller than their heads. They learned that friendship, like a garden, grows best when you care for it together.",
		},
	},
	ThemeFamily: {
		title: "The Family Picnic",
		segments: []string{
			"On a bright Saturday morning, the whole family packed a basket with sandwiches, apples, and a big blue blanket. Even the dog wagged along to help.",
			"They walked to the park by the lake, where ducks paddled in the sparkling water. Grandpa told stories about picnics from long ago.",
			"After lunch everyone played tag and flew a kite shaped like a dragon. The kite soared so high it seemed to touch the clouds.",
			"As the sun set, the family snuggled together on the blanket and watched the sky turn pink. It was the best day, because they spent it together.",
		},
	},
}

// Fallback returns the pre-written narrative for theme. It is a pure
// function of theme; unknown themes resolve to the adventure story.
func Fallback(theme Theme) *Narrative {
	tmpl, ok := fallbacks[theme]
	if !ok {
		tmpl = fallbacks[ThemeAdventure]
	}
	return &Narrative{
		Title:    tmpl.title,
		Body:     pages.Join(tmpl.segments),
		Fallback: true,
	}
}
