package security

import "testing"

// TestTextSanitizer_RemovesTags はHTMLタグがすべて除去されることを検証する。
func TestTextSanitizer_RemovesTags(t *testing.T) {
	s := NewTextSanitizer()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "Printer on floor 3 is jammed", "Printer on floor 3 is jammed"},
		{"script tag", `<script>alert("xss")</script>need help`, "need help"},
		{"formatting tags", "<b>urgent</b> request", "urgent request"},
		{"img onerror", `<img src=x onerror=alert(1)>broken monitor`, "broken monitor"},
		{"anchor", `see <a href="https://evil.example">this</a>`, "see this"},
		{"empty", "", ""},
		{"whitespace trimmed", "  padded  ", "padded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Sanitize(tc.input); got != tc.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

// TestTextSanitizer_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestTextSanitizer_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	input := `<div>password reset <script>x</script>for alice</div>`

	first := s.Sanitize(input)
	second := s.Sanitize(first)
	if first != second {
		t.Errorf("Sanitize is not idempotent: %q != %q", first, second)
	}
}
