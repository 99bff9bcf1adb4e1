package storage

// Package storage persists the two dedup tables:
//
//   - seen:    item_id -> expiry, written only after a confirmed delivery
//   - buckets: signature bucket key -> expiry, for windowed re-alert suppression
//
// The tables are independent on purpose. Many items never match any
// signature, and either table may be dropped on its own with worst case a
// burst of duplicate alerts after restart.
