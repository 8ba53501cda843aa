package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ErrInvalidInput indicates the input failed validation
var ErrInvalidInput = errors.New("invalid input")

const MaxNotesLength = 2000

// Actor names come from the permission subsystem: login names or emails.
var actorRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._@-]{1,99}$`)

// SanitizeString removes potentially dangerous characters and trims whitespace
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters except newline and tab
	var builder strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// ValidateActor checks the name recorded as closed_by and generated_by.
func ValidateActor(actor string) error {
	actor = SanitizeString(actor)

	if actor == "" {
		return fmt.Errorf("%w: actor cannot be empty", ErrInvalidInput)
	}
	if !actorRegex.MatchString(actor) {
		return fmt.Errorf("%w: actor must be 2-100 letters, digits or . _ @ -", ErrInvalidInput)
	}
	return nil
}

// CleanNotes sanitizes close notes and enforces their maximum length.
func CleanNotes(notes string) (string, error) {
	notes = SanitizeString(notes)
	if len([]rune(notes)) > MaxNotesLength {
		return "", fmt.Errorf("%w: notes must not exceed %d characters", ErrInvalidInput, MaxNotesLength)
	}
	return notes, nil
}
