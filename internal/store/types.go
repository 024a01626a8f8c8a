package store

import (
	"errors"
	"time"
)

// Sentinel errors for lookups.
var (
	ErrUserNotFound    = errors.New("store: user not found")
	ErrRequestNotFound = errors.New("store: request not found")
)

// MediaType distinguishes movie and series requests.
type MediaType string

// Media types.
const (
	MediaMovie MediaType = "movie"
	MediaTV    MediaType = "tv"
)

// RequestStatus is the lifecycle state of a media request.
type RequestStatus string

// Request statuses.
const (
	StatusPending   RequestStatus = "pending"
	StatusCancelled RequestStatus = "cancelled"
	StatusDeleted   RequestStatus = "deleted"
)

// User links an Overseerr account (by email) to a chat identity.
type User struct {
	ID       int64
	Email    string
	Phone    string
	LinkedAt time.Time
}

// MediaRequest is one tracked media request with its reminder due time.
type MediaRequest struct {
	ID          int64
	Email       string
	Title       string
	Type        MediaType
	MediaID     int64
	Status      RequestStatus
	RequestedAt time.Time
	DueAt       time.Time
}
