// Package dedup decides whether a candidate event is allowed to notify.
//
// It layers four strategies, checked in order of cost:
//
//   - feed-level: collapse exact-id and title/ticker duplicates inside one
//     ingestion cycle (no persistent state)
//   - seen-by-id: an item id that already produced a confirmed delivery is
//     never delivered again until its TTL lapses
//   - signature: a content fingerprint that matches the same filing or story
//     across different sources and ids
//   - temporal bucket: identical signatures re-alert only after a cooldown
//     window
//
// The one rule everything here exists to protect: an item is marked seen
// strictly after its delivery is confirmed, never before and never in
// parallel.
package dedup
