package pages

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "marker delimited",
			body: "Page one text.\n---PAGE BREAK---\nPage two text.\n---PAGE BREAK---\nPage three.",
			want: []string{"Page one text.", "Page two text.", "Page three."},
		},
		{
			name: "drops empty segments",
			body: "---PAGE BREAK---\nFirst page.\n---PAGE BREAK---\n   \n---PAGE BREAK---\nSecond page.\n---PAGE BREAK---",
			want: []string{"First page.", "Second page."},
		},
		{
			name: "falls back to sentences",
			body: "The fox ran into the woods. Oh no! Would the owl find her? Yes she did.",
			want: []string{"The fox ran into the woods", "Would the owl find her", "Yes she did"},
		},
		{
			name: "single marker segment falls back to sentences",
			body: "---PAGE BREAK---\nA long first sentence here. Another long sentence.",
			want: []string{"A long first sentence here", "Another long sentence"},
		},
		{
			name: "no usable sentences keeps the single segment",
			body: "Hi. Yo.",
			want: []string{"Hi. Yo."},
		},
		{
			name: "empty body",
			body: "   ",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.body)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJoinRoundTrip(t *testing.T) {
	segments := []string{"Once upon a time.", "Then something happened.", "The end."}
	got := Split(Join(segments))
	if !reflect.DeepEqual(got, segments) {
		t.Errorf("Split(Join()) = %q, want %q", got, segments)
	}
}
