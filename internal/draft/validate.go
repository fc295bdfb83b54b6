package draft

import (
	"strings"

	"github.com/hpungsan/promptbench/internal/errors"
)

// Publish requirements, in report order.
var publishChecks = []struct {
	field   string
	message string
	missing func(State) bool
}{
	{"topic", "topic is required", func(s State) bool { return blank(s.Topic) }},
	{"body", "body is required", func(s State) bool { return blank(s.Body) }},
	{"instructions", "instructions are required", func(s State) bool { return blank(s.Instructions) }},
	{"model", "a target model is required", func(s State) bool { return blank(s.Model) }},
	{"positive", "at least one positive keyword is required", func(s State) bool { return len(s.Positive) == 0 }},
	{"negative", "at least one negative keyword is required", func(s State) bool { return len(s.Negative) == 0 }},
	{"tags", "at least one tag is required", func(s State) bool { return len(s.Tags) == 0 }},
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// MissingForPublish returns one field error per unmet publish requirement.
func MissingForPublish(s State) []errors.FieldError {
	var missing []errors.FieldError
	for _, c := range publishChecks {
		if c.missing(s) {
			missing = append(missing, errors.FieldError{Field: c.field, Message: c.message})
		}
	}
	return missing
}

// ValidatePublish returns a VALIDATION_FAILED error listing every missing field, or nil.
func ValidatePublish(s State) error {
	if missing := MissingForPublish(s); len(missing) > 0 {
		return errors.NewValidation(missing)
	}
	return nil
}

// Autosavable reports whether the draft qualifies for autosave:
// topic and body both non-blank.
func Autosavable(s State) bool {
	return !blank(s.Topic) && !blank(s.Body)
}
