package story

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/jackzampolin/picturebook/internal/pages"
)

//go:embed system.tmpl
var systemPromptTmpl string

//go:embed user.tmpl
var userPromptTmpl string

var (
	systemTemplate = template.Must(template.New("system").Parse(systemPromptTmpl))
	userTemplate   = template.Must(template.New("user").Parse(userPromptTmpl))

	// The system prompt takes no per-request data.
	systemPrompt = mustRender(systemTemplate, promptData{Marker: pages.BreakMarker})
)

type promptData struct {
	Marker         string
	PhotoCount     int
	AgeDescription string
	Theme          Theme
	ToneDirective  string
	PageTarget     int
}

func newPromptData(c Customization, photoCount int) promptData {
	return promptData{
		Marker:         pages.BreakMarker,
		PhotoCount:     photoCount,
		AgeDescription: c.AgeDescription(),
		Theme:          c.Theme,
		ToneDirective:  c.ToneDirective(),
		PageTarget:     c.PageTarget(),
	}
}

// SystemPrompt returns the story author system prompt.
func SystemPrompt() string {
	return systemPrompt
}

// UserPrompt builds the story request for the given choices and photo count.
func UserPrompt(c Customization, photoCount int) (string, error) {
	return render(userTemplate, newPromptData(c, photoCount))
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func mustRender(t *template.Template, data promptData) string {
	out, err := render(t, data)
	if err != nil {
		panic(err)
	}
	return out
}
