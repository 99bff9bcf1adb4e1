// Package event defines the candidate event model shared by ingestion,
// deduplication, and delivery.
package event

import "time"

// SourceKind labels where a candidate came from. It is carried for logging
// and rendering only; dedup keying inspects the URL host, not the kind.
type SourceKind string

const (
	SourceFiling       SourceKind = "filing"
	SourcePressRelease SourceKind = "press_release"
	SourceAggregator   SourceKind = "aggregator"
	SourceOther        SourceKind = "other"
)

// Candidate is one normalized inbound item as produced by an ingestion
// source. It is immutable once produced within a cycle.
//
// ItemID is stable and unique per source across restarts, but NOT unique
// across sources; the same real-world event may arrive under several ids.
// Title or URL may be empty, never both.
type Candidate struct {
	ItemID      string     `json:"item_id"`
	Ticker      string     `json:"ticker,omitempty"`
	Title       string     `json:"title"`
	URL         string     `json:"url,omitempty"`
	Source      SourceKind `json:"source"`
	PublishedAt time.Time  `json:"published_at,omitempty"`
}

// Alert is the rendered payload handed to a delivery channel.
type Alert struct {
	ItemID      string     `json:"item_id"`
	Ticker      string     `json:"ticker,omitempty"`
	Title       string     `json:"title"`
	URL         string     `json:"url,omitempty"`
	Source      SourceKind `json:"source"`
	Score       float64    `json:"score,omitempty"`
	PublishedAt time.Time  `json:"published_at,omitempty"`
}

// Outcome is the per-item result of one delivery attempt. It is ephemeral:
// produced by the delivery channel, consumed by the dispatch gate, never
// persisted.
type Outcome struct {
	ItemID      string
	Delivered   bool
	AttemptedAt time.Time
	Err         error
}
