package water

import (
	"strings"
)

// forbiddenAreaChars cannot appear in an area key: they are path or key
// separators in one of the store backends.
const forbiddenAreaChars = "/.#$[]:"

// AreaID is the canonical storage identifier of a monitored area. Display
// labels map to it by replacing single spaces with underscores; since display
// labels may not contain underscores the mapping is reversible.
type AreaID string

// NewAreaID builds an AreaID from a display label such as "HSR Layout".
// Surrounding whitespace is trimmed and internal runs of whitespace collapse to
// one space. Labels containing underscores are rejected.
func NewAreaID(display string) (AreaID, error) {
	normalized := strings.Join(strings.Fields(display), " ")
	if normalized == "" {
		return "", Errorf(ErrValidation, "area cannot be empty")
	}
	if strings.Contains(normalized, "_") {
		return "", Errorf(ErrValidation, "area %q must not contain underscores", display)
	}
	if strings.ContainsAny(normalized, forbiddenAreaChars) {
		return "", Errorf(ErrValidation, "area %q contains one of %q", display, forbiddenAreaChars)
	}
	return AreaID(strings.ReplaceAll(normalized, " ", "_")), nil
}

// ParseAreaID accepts either a display label or a storage key ("HSR Layout" or
// "HSR_Layout") and returns the AreaID.
func ParseAreaID(s string) (AreaID, error) {
	return NewAreaID(strings.ReplaceAll(s, "_", " "))
}

// MustAreaID is ParseAreaID for constants; it panics on invalid input.
func MustAreaID(s string) AreaID {
	id, err := ParseAreaID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Display returns the human-readable label.
func (a AreaID) Display() string {
	return strings.ReplaceAll(string(a), "_", " ")
}

// String returns the storage form.
func (a AreaID) String() string {
	return string(a)
}
