package models

import (
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for submission and update
// dates. It is fixed-width, so lexical order equals chronological order,
// which the record stores rely on for their sort key.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Attendance records which event days the main contact plans to attend
type Attendance struct {
	Friday   bool `json:"friday" dynamodbav:"friday"`
	Saturday bool `json:"saturday" dynamodbav:"saturday"`
}

// Any reports whether at least one day is selected
func (a Attendance) Any() bool {
	return a.Friday || a.Saturday
}

// Guest is an additional attendee brought by the main contact
type Guest struct {
	Name string     `json:"name" dynamodbav:"name"`
	Age  AgeBracket `json:"age" dynamodbav:"age"`
}

// Record is a persisted RSVP. Email and SubmissionDate form the key.
type Record struct {
	Email           string     `json:"email" dynamodbav:"email"`
	SubmissionDate  string     `json:"submissionDate" dynamodbav:"submissionDate"`
	Name            string     `json:"name" dynamodbav:"name"`
	Age             AgeBracket `json:"age" dynamodbav:"age"`
	Attendance      Attendance `json:"attendance" dynamodbav:"attendance"`
	TotalGuests     int        `json:"totalGuests" dynamodbav:"totalGuests"`
	Guests          []Guest    `json:"guests" dynamodbav:"guests"`
	LastUpdatedDate string     `json:"lastUpdatedDate,omitempty" dynamodbav:"lastUpdatedDate,omitempty"`
}

// RecordPatch carries every mutable field of a record. Updates replace all of
// them; there is no partial patch.
type RecordPatch struct {
	Name            string
	Age             AgeBracket
	Attendance      Attendance
	TotalGuests     int
	Guests          []Guest
	LastUpdatedDate string
}

// PatchFrom builds a full-replace patch from a validated record
func PatchFrom(r *Record, updatedAt time.Time) RecordPatch {
	return RecordPatch{
		Name:            r.Name,
		Age:             r.Age,
		Attendance:      r.Attendance,
		TotalGuests:     r.TotalGuests,
		Guests:          CopyGuests(r.Guests),
		LastUpdatedDate: FormatTimestamp(updatedAt),
	}
}

// Apply overwrites the mutable fields of the record with the patch
func (p RecordPatch) Apply(r *Record) {
	r.Name = p.Name
	r.Age = p.Age
	r.Attendance = p.Attendance
	r.TotalGuests = p.TotalGuests
	r.Guests = CopyGuests(p.Guests)
	r.LastUpdatedDate = p.LastUpdatedDate
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Guests = CopyGuests(r.Guests)
	return &out
}

// ConfirmationID is the opaque receipt returned to the submitter
func (r *Record) ConfirmationID() string {
	return r.SubmissionDate
}

// CopyGuests returns a non-nil copy of the guest list
func CopyGuests(guests []Guest) []Guest {
	out := make([]Guest, len(guests))
	copy(out, guests)
	return out
}

// NormalizeEmail trims and lower-cases an email address so that keys are
// case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FormatTimestamp formats t in UTC with millisecond precision
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a timestamp written by FormatTimestamp
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
