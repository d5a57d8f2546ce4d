package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"rsvp-api/internal/models"
)

// Validation rule codes, in evaluation order
const (
	RuleMissingEmail       = "missing_email"
	RuleMissingName        = "missing_name"
	RuleInvalidAge         = "invalid_age"
	RuleNoAttendance       = "no_attendance"
	RuleInvalidGuests      = "invalid_guests"
	RuleGuestCountMismatch = "guest_count_mismatch"
	RuleInvalidGuest       = "invalid_guest"
)

// Payload is a decoded JSON request body
type Payload map[string]interface{}

// ValidationDetail describes which rule failed and the offending values
type ValidationDetail struct {
	Rule        string                    `json:"rule"`
	Errors      []*models.ValidationError `json:"errors"`
	Expected    *int                      `json:"expected,omitempty"`
	Actual      *int                      `json:"actual,omitempty"`
	ValidValues []string                  `json:"validValues,omitempty"`
}

// Validator checks RSVP payloads. Create and update share one instance and
// therefore one rule set.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator with the agebracket tag registered
func NewValidator() *Validator {
	v := validator.New()
	if err := v.RegisterValidation("agebracket", func(fl validator.FieldLevel) bool {
		return models.AgeBracket(fl.Field().String()).IsValid()
	}); err != nil {
		panic(fmt.Sprintf("failed to register agebracket validation: %v", err))
	}
	return &Validator{validate: v}
}

// Validate checks the payload against every rule in order and stops at the
// first failure. On success it returns a normalized record without a
// submission date.
func (v *Validator) Validate(payload Payload) (*models.Record, error) {
	contact, _ := payload["mainContact"].(map[string]interface{})

	email, ok := nonEmptyString(contact["email"])
	if !ok {
		return nil, v.fail(RuleMissingEmail, "Missing required field: email", fieldError("mainContact.email", "email is required", contact["email"]))
	}

	name, ok := nonEmptyString(contact["name"])
	if !ok {
		return nil, v.fail(RuleMissingName, "Missing required field: name", fieldError("mainContact.name", "name is required", contact["name"]))
	}

	age, ok := v.ageBracket(contact["age"])
	if !ok {
		err := v.fail(RuleInvalidAge, "Invalid age bracket", fieldError("mainContact.age", "age must be one of the valid age brackets", contact["age"]))
		err.Detail.(*ValidationDetail).ValidValues = models.AgeBracketValues()
		return nil, err
	}

	attendance := models.Attendance{
		Friday:   contact["attendingFriday"] == true,
		Saturday: contact["attendingSaturday"] == true,
	}
	if !attendance.Any() {
		return nil, v.fail(RuleNoAttendance, "Please select at least one day to attend",
			fieldError("mainContact.attendingFriday", "at least one day must be selected", contact["attendingFriday"]),
			fieldError("mainContact.attendingSaturday", "at least one day must be selected", contact["attendingSaturday"]),
		)
	}

	rawGuests, ok := payload["guests"].([]interface{})
	if !ok {
		return nil, v.fail(RuleInvalidGuests, "Guests must be a list", fieldError("guests", "guests must be an array", payload["guests"]))
	}

	total, ok := integer(payload["totalGuests"])
	if !ok || total != len(rawGuests) {
		actual := len(rawGuests)
		err := v.fail(RuleGuestCountMismatch, "Total guests does not match the number of guests provided",
			fieldError("totalGuests", "totalGuests must equal the number of guests", payload["totalGuests"]))
		detail := err.Detail.(*ValidationDetail)
		if ok {
			detail.Expected = &total
		}
		detail.Actual = &actual
		return nil, err
	}

	guests := make([]models.Guest, 0, len(rawGuests))
	var guestErrors []*models.ValidationError
	for i, raw := range rawGuests {
		g, _ := raw.(map[string]interface{})
		field := fmt.Sprintf("guests[%d]", i)

		guestName, nameOK := nonEmptyString(g["name"])
		if !nameOK {
			guestErrors = append(guestErrors, fieldError(field+".name", "guest name is required", g["name"]))
		}
		guestAge, ageOK := v.ageBracket(g["age"])
		if !ageOK {
			guestErrors = append(guestErrors, fieldError(field+".age", "guest age must be one of the valid age brackets", g["age"]))
		}
		if nameOK && ageOK {
			guests = append(guests, models.Guest{Name: guestName, Age: guestAge})
		}
	}
	if len(guestErrors) > 0 {
		err := v.fail(RuleInvalidGuest, "Invalid guest data", guestErrors...)
		err.Detail.(*ValidationDetail).ValidValues = models.AgeBracketValues()
		return nil, err
	}

	return &models.Record{
		Email:       models.NormalizeEmail(email),
		Name:        name,
		Age:         age,
		Attendance:  attendance,
		TotalGuests: total,
		Guests:      guests,
	}, nil
}

// ValidateEmail checks a lookup email and returns it normalized
func (v *Validator) ValidateEmail(value interface{}) (string, error) {
	email, ok := nonEmptyString(value)
	if !ok {
		return "", v.fail(RuleMissingEmail, "Missing required field: email", fieldError("email", "email is required", value))
	}
	return models.NormalizeEmail(email), nil
}

func (v *Validator) ageBracket(value interface{}) (models.AgeBracket, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	if err := v.validate.Var(s, "required,agebracket"); err != nil {
		return "", false
	}
	return models.AgeBracket(s), true
}

func (v *Validator) fail(rule, message string, errs ...*models.ValidationError) *Error {
	return NewError(KindValidationFailed, message, &ValidationDetail{
		Rule:   rule,
		Errors: errs,
	}, nil)
}

func fieldError(field, message string, value interface{}) *models.ValidationError {
	return &models.ValidationError{Field: field, Message: message, Value: value}
}

// nonEmptyString returns the trimmed string when value is a string with
// content
func nonEmptyString(value interface{}) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	if verr := models.ValidateRequired(s, "value"); verr != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// integer accepts the numeric forms a JSON decoder may produce, provided
// they hold a whole number
func integer(value interface{}) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return integer(f)
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		if n >= math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
