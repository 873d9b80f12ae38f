// Package agent defines the topical coaching domains used to route
// conversation context and select program-generation behavior.
package agent

import "strings"

type Category string

const (
	Training  Category = "Training"
	Nutrition Category = "Nutrition"
	Sleep     Category = "Sleep"
	Clinical  Category = "Clinical"
	Other     Category = "Other"
)

// Parse is tolerant of model output casing; anything unrecognized maps
// to Other.
func Parse(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "training", "fitness", "exercise":
		return Training
	case "nutrition", "diet":
		return Nutrition
	case "sleep":
		return Sleep
	case "clinical", "medical", "health":
		return Clinical
	default:
		return Other
	}
}

// ProgramCapable reports whether the category supports structured
// multi-week programs. Clinical intentionally does not: clinical topics
// route to conversation only.
func (c Category) ProgramCapable() bool {
	switch c {
	case Training, Nutrition, Sleep:
		return true
	}
	return false
}

// ProgramType is the versioned program type key, e.g. "training.v1".
func (c Category) ProgramType() string {
	return strings.ToLower(string(c)) + ".v1"
}

// FromProgramType recovers the category from a type key like "training.v1".
func FromProgramType(t string) Category {
	key, _, _ := strings.Cut(t, ".")
	return Parse(key)
}
