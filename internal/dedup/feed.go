package dedup

import (
	"strings"

	"newsgate/internal/event"
)

// FeedDedupe collapses duplicates within one ingestion cycle, before
// classification spends anything on them. A candidate is dropped when its
// item id OR its (normalized title, ticker) pair already appeared earlier in
// the batch; the first occurrence wins, ingestion order breaks ties.
//
// The result is recomputed fresh each cycle and carries no cross-cycle
// state. Title/ticker matching here deliberately uses the raw pair rather
// than the content signature: two distinct filings can share boilerplate
// titles, and only the intra-cycle pass should collapse those.
func FeedDedupe(candidates []event.Candidate) []event.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	seenIDs := make(map[string]struct{}, len(candidates))
	seenTitles := make(map[titleKey]struct{}, len(candidates))

	out := make([]event.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ItemID != "" {
			if _, dup := seenIDs[c.ItemID]; dup {
				continue
			}
		}
		tk, hasTitle := newTitleKey(c)
		if hasTitle {
			if _, dup := seenTitles[tk]; dup {
				continue
			}
		}
		if c.ItemID != "" {
			seenIDs[c.ItemID] = struct{}{}
		}
		if hasTitle {
			seenTitles[tk] = struct{}{}
		}
		out = append(out, c)
	}
	return out
}

type titleKey struct {
	title  string
	ticker string
}

func newTitleKey(c event.Candidate) (titleKey, bool) {
	norm := NormalizeTitle(c.Title)
	if norm == "" {
		// Title-less candidates (URL only) can't title-match anything.
		return titleKey{}, false
	}
	return titleKey{title: norm, ticker: strings.ToUpper(strings.TrimSpace(c.Ticker))}, true
}
