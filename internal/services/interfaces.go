package services

import (
	"context"

	"rsvp-api/internal/models"
)

// Operation names
const (
	OperationCreate = "create"
	OperationLookup = "lookup"
	OperationUpdate = "update"
)

// RSVPService defines the RSVP business operations. Every error returned is
// a *Error.
type RSVPService interface {
	// CreateRSVP validates the payload and stores it as the first record for
	// its email. A second create for the same email is a Conflict.
	CreateRSVP(ctx context.Context, payload Payload) (*models.Record, error)

	// LookupRSVP returns the latest record for the email in the payload
	// ("email", falling back to "mainContact.email")
	LookupRSVP(ctx context.Context, payload Payload) (*models.Record, error)

	// UpdateRSVP revalidates the full payload and replaces every mutable
	// field of the latest record for its email
	UpdateRSVP(ctx context.Context, payload Payload) (*models.Record, error)
}
