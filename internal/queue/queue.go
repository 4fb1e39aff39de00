// Package queue holds user-submitted garment items pending publication and
// processes them in batch against the marketplace publish API.
package queue

import (
	"errors"
	"time"
)

var (
	// ErrInvalidStateTransition is returned when an operation is requested
	// on an item whose status does not allow it.
	ErrInvalidStateTransition = errors.New("queue: invalid state transition")

	// ErrNotFound is returned when no item with the given ID exists.
	ErrNotFound = errors.New("queue: item not found")
)

// Status is the lifecycle state of a queue item.
// Pending -> Processing -> {Published, Failed}. Failed items stay inspectable
// and are only retried through an explicit Reprocess call.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
)

// ListingDraft is the garment attributes payload for one item, typically
// produced by the vision analyzer. Price may be nil, in which case the
// processor computes a recommendation at publish time.
type ListingDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Brand       string   `json:"brand,omitempty"`
	Size        string   `json:"size,omitempty"`
	Material    string   `json:"material,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Query       string   `json:"query,omitempty"` // comps search query; defaults to Title
	ImageURLs   []string `json:"imageUrls,omitempty"`
}

// Item is one queued garment. Items are owned exclusively by the Processor
// for their entire lifecycle.
type Item struct {
	ID          string       `json:"id"`
	Draft       ListingDraft `json:"draft"`
	SubmittedAt time.Time    `json:"submittedAt"`
	Status      Status       `json:"status"`
	LastError   string       `json:"lastError,omitempty"`
	ListingID   string       `json:"listingId,omitempty"`
}

// ItemResult records the outcome of processing one item during a batch pass.
type ItemResult struct {
	ItemID    string  `json:"itemId"`
	Status    Status  `json:"status"`
	ListingID string  `json:"listingId,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Store persists queue items across restarts. All methods are write-through;
// the Processor's in-memory map stays authoritative during a run.
type Store interface {
	InsertItem(item Item) error
	UpdateItem(item Item) error
	DeleteItem(id string) error
	ListItems() ([]Item, error)
}
