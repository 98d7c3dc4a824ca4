package text

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty gets fallback", "", "You need to add some text for me to talk."},
		{"capitalizes first letter", "hello there", "Hello there."},
		{"keeps existing capital", "Hello there.", "Hello there."},
		{"adds terminal period", "Hello world", "Hello world."},
		{"keeps question mark", "Are you there?", "Are you there?"},
		{"keeps exclamation", "Go!", "Go!"},
		{"ellipsis becomes comma", "Well…maybe", "Well, maybe."},
		{"colon becomes comma", "Listen: carefully", "Listen, carefully."},
		{"em dash becomes hyphen", "wait—no", "Wait-no."},
		{"en dash becomes hyphen", "1–2", "1-2."},
		{"curly double quotes straightened", "say “hi” now", "Say \"hi\" now."},
		{"curly single quotes straightened", "it’s fine", "It's fine."},
		{"space before comma removed", "yes , sir", "Yes, sir."},
		{"trailing whitespace trimmed", "done.   ", "Done."},
		{"whitespace only gets fallback", "   ", "You need to add some text for me to talk."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q; want %q", tc.in, got, tc.want)
			}
		})
	}
}
