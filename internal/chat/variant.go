package chat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/resumechat/internal/composer"
)

// Variant bundles the settings that distinguish one deployment of the chat
// handler from another.
type Variant struct {
	Name            string
	ModelID         string
	Persona         composer.Persona // Text may contain composer.NamePlaceholder
	HandlePreflight bool
	AllowMethods    string
}

const defaultPersona = `You are {name}. Answer in the first person, as yourself, to help visitors learn about your resume: your skills, experience, education and projects.

Draw on the resume data below and phrase the details naturally, the way you would in conversation rather than reading a document aloud.

Keep answers clear, concise and professional. If you are asked about something the resume does not cover, reply with:

"Great question! I'd be happy to chat more — just contact me directly."

Never describe yourself as an AI, a model or an assistant.`

const legacyPersona = `You are {name} and respond as yourself in first person. You are helping users learn more about your resume, skills, experience, and projects.

    When providing data from the file make it feel more natural talking.

Keep answers clear and professional. If asked about something not in your resume or outside your knowledge, respond with:

"Great question! I'd be happy to chat more — just contact me directly."

Never refer to yourself as an AI or assistant.`

var builtinVariants = map[string]Variant{
	"default": {
		Name:            "default",
		ModelID:         "gemini-2.5-flash",
		Persona:         composer.Persona{Text: defaultPersona},
		HandlePreflight: true,
		AllowMethods:    "GET, POST, OPTIONS",
	},
	// Deployed behaviour of the first release: no preflight branch, and only
	// "GET" made it into the Allow-Methods header.
	"legacy": {
		Name:            "legacy",
		ModelID:         "gemini-1.5-flash",
		// Four blank lines separate the persona from the document.
		Persona:         composer.Persona{Text: legacyPersona, Gap: "\n\n\n\n\n"},
		HandlePreflight: false,
		AllowMethods:    "GET",
	},
}

// DefaultVariant is the variant used when none is configured.
const DefaultVariant = "default"

// LookupVariant returns the built-in variant called name. An empty name
// selects DefaultVariant.
func LookupVariant(name string) (Variant, error) {
	if name == "" {
		name = DefaultVariant
	}
	v, ok := builtinVariants[name]
	if !ok {
		return Variant{}, fmt.Errorf("unknown chat variant %q (available: %s)", name, strings.Join(VariantNames(), ", "))
	}
	return v, nil
}

// Variants lists the built-in variants sorted by name.
func Variants() []Variant {
	out := make([]Variant, 0, len(builtinVariants))
	for _, v := range builtinVariants {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// VariantNames lists the built-in variant names sorted.
func VariantNames() []string {
	vs := Variants()
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = v.Name
	}
	return names
}
