package scene

import "testing"

func TestCharacterHints(t *testing.T) {
	tests := []struct {
		name  string
		title string
		text  string
		want  string
	}{
		{
			name:  "caps at three in table order",
			title: "The Red Fox",
			text:  "A little girl and her dog met a tiny fox.",
			want:  "Main characters: little, tiny, girl.",
		},
		{
			name:  "title contributes",
			title: "Bunny Goes Home",
			text:  "Nothing else here.",
			want:  "Main characters: bunny.",
		},
		{
			name: "whole words only",
			text: "The catalog was scattered.",
			want: "",
		},
		{
			name: "nothing matches",
			text: "Once upon a time.",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CharacterHints(tt.title, tt.text); got != tt.want {
				t.Errorf("CharacterHints() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSettingHints(t *testing.T) {
	got := SettingHints("Night in the Enchanted Forest", "They walked by the river on a starry evening.")
	want := "Setting: forest, river, enchanted."
	if got != want {
		t.Errorf("SettingHints() = %q, want %q", got, want)
	}

	if got := SettingHints("", "They talked."); got != "" {
		t.Errorf("SettingHints() = %q, want empty", got)
	}
}
