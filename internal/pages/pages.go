// Package pages splits narrative text into the ordered page segments that
// each carry one illustration.
package pages

import (
	"strings"
)

// BreakMarker separates pages in narrative text. It must appear on its own line.
const BreakMarker = "---PAGE BREAK---"

// minSentenceLen is the shortest sentence kept by the sentence fallback.
const minSentenceLen = 10

// Split returns the page segments of body in order.
//
// Segments are delimited by BreakMarker; empty segments are dropped. When
// the marker split yields at most one segment, the body is split on
// sentence-terminal punctuation instead and sentences shorter than 10
// characters are dropped. If that produces nothing, the marker result is
// returned unchanged.
func Split(body string) []string {
	segments := splitOnMarker(body)
	if len(segments) > 1 {
		return segments
	}

	sentences := splitOnSentences(body)
	if len(sentences) == 0 {
		return segments
	}
	return sentences
}

// Join renders segments back into marker-delimited narrative text.
func Join(segments []string) string {
	return strings.Join(segments, "\n\n"+BreakMarker+"\n\n")
}

func splitOnMarker(body string) []string {
	parts := strings.Split(body, BreakMarker)
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		segments = append(segments, p)
	}
	return segments
}

func splitOnSentences(body string) []string {
	parts := strings.FieldsFunc(body, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ReplaceAll(p, BreakMarker, " "))
		if len(p) < minSentenceLen {
			continue
		}
		sentences = append(sentences, p)
	}
	return sentences
}
