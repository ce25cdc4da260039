package fallback

import "strings"

const basePreamble = `You are a supportive peer responder on a student wellbeing platform.
Listen without judgment, reflect back what you understood and suggest one small next step.
You are not a therapist or an emergency service. If the person mentions self-harm or danger,
encourage them to contact local emergency services or a trusted person right away.
Answer in the same language as the person, in plain text without formatting.`

// personas holds short neutral preambles keyed by cultural tag.
var personas = map[string]string{
	"east-asian": "Be mindful that family expectations and academic pressure may weigh heavily. " +
		"Avoid pushing for direct confrontation and respect indirect ways of expressing feelings.",
	"south-asian": "Be mindful of family roles and community expectations. " +
		"Acknowledge duty and obligation without dismissing personal needs.",
	"latin-american": "Be warm and personal. Family and close relationships are often a central source of support.",
	"african": "Acknowledge community and extended family as possible sources of support. " +
		"Be respectful of faith and tradition if the person brings them up.",
	"middle-eastern": "Be respectful and reserved. Acknowledge faith, family honour and privacy if the person raises them.",
	"western": "Be direct and collaborative. Focus on the person's own goals and choices.",
}

// Personas resolves the system preamble for a cultural tag.
type Personas struct {
	byTag    map[string]string
	fallback string
}

// NewPersonas returns the built-in personas. A non-empty defaultPersona
// replaces the guidance used for unknown tags.
func NewPersonas(defaultPersona string) *Personas {
	return &Personas{byTag: personas, fallback: strings.TrimSpace(defaultPersona)}
}

// Preamble returns the system instruction for tag.
func (p *Personas) Preamble(tag string) string {
	guidance, ok := p.byTag[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		guidance = p.fallback
	}
	if guidance == "" {
		return basePreamble
	}
	return basePreamble + "\n\n" + guidance
}
