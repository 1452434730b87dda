package prompts

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jackzampolin/picturebook/internal/moderation"
	"github.com/jackzampolin/picturebook/internal/pages"
)

func sixPageBody() string {
	segments := make([]string, 6)
	for i := range segments {
		segments[i] = fmt.Sprintf("On page %d the little fox explored the sunny meadow.", i+1)
	}
	return pages.Join(segments)
}

func TestBuild(t *testing.T) {
	t.Run("one prompt per page", func(t *testing.T) {
		bodies := []string{
			sixPageBody(),
			"Only one page here, and it is long enough.",
			"A first sentence that is long. A second sentence that is long. Tiny.",
			"---PAGE BREAK---\nx\n---PAGE BREAK---\ny\n---PAGE BREAK---",
		}
		for _, body := range bodies {
			got := Build(body, "Title")
			if want := len(pages.Split(body)); len(got) != want {
				t.Errorf("Build() returned %d prompts, want %d for body %q", len(got), want, body)
			}
		}
	})

	t.Run("style cycles with period four", func(t *testing.T) {
		prompts := Build(sixPageBody(), "The Fox")
		if len(prompts) != 6 {
			t.Fatalf("len(prompts) = %d, want 6", len(prompts))
		}
		for i, p := range prompts {
			style := StyleFor(i)
			if !strings.Contains(p, style.Descriptor()) {
				t.Errorf("prompts[%d] missing style %q", i, style.Descriptor())
			}
			if !strings.Contains(p, style.Composition) {
				t.Errorf("prompts[%d] missing composition %q", i, style.Composition)
			}
		}
		if StyleFor(0) != StyleFor(4) || StyleFor(1) != StyleFor(5) {
			t.Error("expected styles to repeat every four pages")
		}
		if strings.Contains(prompts[1], StyleFor(0).Descriptor()) {
			t.Error("prompts[1] should not use the first style")
		}
	})

	t.Run("moderates page text", func(t *testing.T) {
		body := pages.Join([]string{
			"The knight drew a sharp sword.",
			"A dragon came to fight.",
		})
		prompts := Build(body, "Brave Knight")
		if !strings.Contains(prompts[0], moderation.Moderate("The knight drew a sharp sword.")) {
			t.Errorf("prompts[0] = %q, want moderated text", prompts[0])
		}
		for _, banned := range []string{"sharp", "sword", "fight"} {
			for i, p := range prompts {
				if strings.Contains(p, " "+banned+" ") || strings.Contains(p, " "+banned+".") {
					t.Errorf("prompts[%d] contains %q", i, banned)
				}
			}
		}
	})

	t.Run("includes title and hints", func(t *testing.T) {
		prompts := Build(sixPageBody(), "The Fox")
		p := prompts[0]
		for _, want := range []string{`"The Fox"`, "Main characters: little, fox.", "Setting: meadow, sunny.", preamble, suffix} {
			if !strings.Contains(p, want) {
				t.Errorf("prompt missing %q: %s", want, p)
			}
		}
	})
}
