package domain

import "strings"

// Mode partitions wallets and positions into independent ledgers.
type Mode string

const (
	ModeFake Mode = "fake"
	ModeReal Mode = "real"
)

// Modes returns every supported mode.
func Modes() []Mode {
	return []Mode{ModeFake, ModeReal}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFake || m == ModeReal
}

func (m Mode) String() string { return string(m) }

// ParseMode converts user input into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", NewValidationError("mode", "must be %q or %q, got %q", ModeFake, ModeReal, s)
	}
	return m, nil
}
