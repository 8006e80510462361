package models

import (
	"time"
)

// Link is a single entry of the short-link directory.
type Link struct {
	ID             int64     `json:"id"`
	OwnerID        string    `json:"owner_id"`
	DestinationURL string    `json:"destination_url"`
	ShortCode      string    `json:"short_code"`
	AccessCount    int64     `json:"access_count"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// ShortenInput is the validated shape of a shorten request.
type ShortenInput struct {
	DestinationURL string
	CustomCode     *string
	ExpiresAt      *time.Time
}

// LinkListing is an owner's links, newest first, with the active/expired split
// computed at read time.
type LinkListing struct {
	Links       []Link
	Active      []Link
	Expired     []Link
	EvaluatedAt time.Time
}
