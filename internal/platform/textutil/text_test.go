package textutil

import "testing"

func TestPlainText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"trims", "  hello  ", 0, "hello"},
		{"strips markup", "<b>rush</b> <script>alert(1)</script>order", 0, "rush order"},
		{"collapses whitespace", "a\n\n b\t c", 0, "a b c"},
		{"truncates runes", "ご注文ありがとうございます", 4, "ご注文あ"},
		{"keeps entities readable", "fish &amp; chips", 0, "fish & chips"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PlainText(tc.in, tc.max); got != tc.want {
				t.Fatalf("PlainText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestAppendNote(t *testing.T) {
	if got := AppendNote("", "first", 0); got != "first" {
		t.Fatalf("unexpected %q", got)
	}
	if got := AppendNote("first", " second ", 0); got != "first\nsecond" {
		t.Fatalf("unexpected %q", got)
	}
	if got := AppendNote("first", "<i></i>", 0); got != "first" {
		t.Fatalf("blank note must not change notes, got %q", got)
	}
}
