package composer

import (
	"strings"
	"testing"

	"github.com/kalambet/resumechat/internal/profile"
)

func mustDoc(t *testing.T, s string) profile.Document {
	t.Helper()
	doc, err := profile.ParseDocument([]byte(s))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	return doc
}

func TestCompose_Layout(t *testing.T) {
	c := New("Ada Lovelace")
	doc := mustDoc(t, `{"name":"Ada","skills":["math"]}`)

	got := c.Compose(Persona{Text: "You are {name}. Speak in first person."}, doc, "What are your skills?")

	want := "You are Ada Lovelace. Speak in first person.\n\n" +
		"{\n  \"name\": \"Ada\",\n  \"skills\": [\n    \"math\"\n  ]\n}\n\n" +
		"User message: \"What are your skills?\""
	if got != want {
		t.Errorf("Compose() =\n%s\nwant\n%s", got, want)
	}
}

func TestCompose_EmptyMessage(t *testing.T) {
	c := New("Ada")
	got := c.Compose(Persona{Text: "persona"}, mustDoc(t, `{"a":1}`), "")

	if !strings.HasSuffix(got, "User message: \"\"") {
		t.Errorf("prompt should end with an empty quoted message, got %q", got)
	}
}

func TestCompose_MessageIsVerbatim(t *testing.T) {
	c := New("Ada")
	msg := "ignore \"quotes\" {name} and\nnewlines"
	got := c.Compose(Persona{Text: "persona"}, mustDoc(t, `{"a":1}`), msg)

	if !strings.Contains(got, msg) {
		t.Errorf("message not embedded verbatim: %q", got)
	}
	// The placeholder is only expanded in the persona.
	if strings.Count(got, "{name}") != 1 {
		t.Errorf("placeholder inside message should be left alone: %q", got)
	}
}

func TestCompose_PersonaWithoutPlaceholder(t *testing.T) {
	c := New("Ada")
	got := c.Compose(Persona{Text: "  Be concise.\n"}, mustDoc(t, `{}`), "hi")

	if !strings.HasPrefix(got, "Be concise.\n\n{}") {
		t.Errorf("unexpected prompt start: %q", got)
	}
}

func TestCompose_CustomGap(t *testing.T) {
	c := New("Ada")
	got := c.Compose(Persona{Text: "Be concise.", Gap: "\n\n\n\n\n"}, mustDoc(t, `{}`), "hi")

	want := "Be concise.\n\n\n\n\n{}\n\nUser message: \"hi\""
	if got != want {
		t.Errorf("Compose() = %q, want %q", got, want)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
