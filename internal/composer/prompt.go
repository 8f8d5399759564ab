package composer

import (
	"strings"

	"github.com/kalambet/resumechat/internal/profile"
)

// NamePlaceholder is replaced with the configured persona name.
const NamePlaceholder = "{name}"

// Composer assembles the single prompt string sent to the generation
// service: persona instructions, the résumé document, then the user's
// message quoted verbatim.
type Composer struct {
	PersonaName string
}

// Persona is the instruction block that opens a prompt. Gap is written
// between it and the document; empty means one blank line.
type Persona struct {
	Text string
	Gap  string
}

// New creates a Composer that speaks as name.
func New(name string) *Composer {
	return &Composer{PersonaName: name}
}

// Compose builds the prompt. The message is embedded as-is; an empty
// message still yields a complete prompt.
func (c *Composer) Compose(p Persona, doc profile.Document, message string) string {
	gap := p.Gap
	if gap == "" {
		gap = "\n\n"
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(strings.ReplaceAll(p.Text, NamePlaceholder, c.PersonaName)))
	sb.WriteString(gap)
	sb.WriteString(doc.Indented())
	sb.WriteString("\n\nUser message: \"")
	sb.WriteString(message)
	sb.WriteString("\"")

	return sb.String()
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
