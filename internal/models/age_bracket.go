package models

import (
	"strconv"
	"strings"
)

// AgeBracket is the canonical age category of an attendee
type AgeBracket string

const (
	AgeBracketAdult   AgeBracket = "Adult (18+)"
	AgeBracketTeen    AgeBracket = "Teen (13-17)"
	AgeBracketChild   AgeBracket = "Child (4-12)"
	AgeBracketToddler AgeBracket = "Toddler (1-3)"
	AgeBracketInfant  AgeBracket = "Infant (0-1)"
)

// ageBrackets is ordered from oldest to youngest; the order is used in
// validation messages and API documentation.
var ageBrackets = []AgeBracket{
	AgeBracketAdult,
	AgeBracketTeen,
	AgeBracketChild,
	AgeBracketToddler,
	AgeBracketInfant,
}

// legacyAgeCodes maps the single-letter codes stored by the first version of
// the RSVP form to the canonical labels.
var legacyAgeCodes = map[string]AgeBracket{
	"A": AgeBracketAdult,
	"T": AgeBracketTeen,
	"C": AgeBracketChild,
	"D": AgeBracketToddler,
	"I": AgeBracketInfant,
}

// AgeBrackets returns the valid age brackets
func AgeBrackets() []AgeBracket {
	out := make([]AgeBracket, len(ageBrackets))
	copy(out, ageBrackets)
	return out
}

// AgeBracketValues returns the valid age brackets as plain strings
func AgeBracketValues() []string {
	values := make([]string, len(ageBrackets))
	for i, b := range ageBrackets {
		values[i] = string(b)
	}
	return values
}

// IsValid reports whether the bracket is a member of the canonical enumeration
func (a AgeBracket) IsValid() bool {
	for _, b := range ageBrackets {
		if a == b {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer
func (a AgeBracket) String() string {
	return string(a)
}

// MigrateLegacyAge converts an age value written by an older form revision
// into a canonical bracket. Canonical labels are returned unchanged with
// changed=false. Accepted legacy forms are the single-letter codes and
// whole-number ages in years.
func MigrateLegacyAge(value string) (bracket AgeBracket, changed bool, ok bool) {
	trimmed := strings.TrimSpace(value)
	if AgeBracket(trimmed).IsValid() {
		return AgeBracket(trimmed), trimmed != value, true
	}

	if b, found := legacyAgeCodes[strings.ToUpper(trimmed)]; found {
		return b, true, true
	}

	years, err := strconv.Atoi(trimmed)
	if err != nil || years < 0 || years > 120 {
		return "", false, false
	}

	return AgeBracketForYears(years), true, true
}

// AgeBracketForYears returns the bracket for an age in whole years
func AgeBracketForYears(years int) AgeBracket {
	switch {
	case years >= 18:
		return AgeBracketAdult
	case years >= 13:
		return AgeBracketTeen
	case years >= 4:
		return AgeBracketChild
	case years >= 1:
		return AgeBracketToddler
	default:
		return AgeBracketInfant
	}
}
