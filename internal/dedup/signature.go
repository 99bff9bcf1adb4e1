package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

// KeySource says which dedup-key strategy produced a signature.
type KeySource string

const (
	KeyFilingID KeySource = "filing_id"
	KeyURL      KeySource = "url"
)

// Signature is a content fingerprint for one candidate event. Two candidates
// carrying the same real-world event produce the same Hash even when their
// item ids and URLs differ.
//
// Signatures are derived, never persisted standalone; they only live inside
// a temporal bucket key.
type Signature struct {
	Hash      string
	DedupKey  string
	KeySource KeySource
	Ticker    string
	NormTitle string
}

// IsZero reports whether the signature carries no content at all.
func (s Signature) IsZero() bool { return s.Hash == "" }

// filingHosts are host suffixes of regulatory filing systems. Filings get
// republished under several URLs (primary feed, document viewer, archive)
// that all embed one canonical accession number; URLs on these hosts are
// keyed by that number instead of the raw URL.
var filingHosts = []string{
	"sec.gov",
	"sec.report",
}

// An accession number is 10+2+6 digits: filer id, two-digit year, sequence.
var (
	reAccessionDashed  = regexp.MustCompile(`\b(\d{10}-\d{2}-\d{6})\b`)
	reAccessionCompact = regexp.MustCompile(`\b(\d{18})\b`)
	reTitleJunk        = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	reSpaces           = regexp.MustCompile(`\s+`)
)

// NewSignature derives the fingerprint for (ticker, title, url).
//
// Missing ticker is accepted (empty component), never fatal. An unparseable
// or non-filing URL falls back to raw-URL keying, so sources without a
// canonical identifier keep deduplicating by location.
func NewSignature(ticker, title, rawURL string) Signature {
	norm := NormalizeTitle(title)
	tick := strings.ToUpper(strings.TrimSpace(ticker))

	key, src := resolveDedupKey(rawURL)

	h := sha256.Sum256([]byte(tick + "|" + norm + "|" + key))
	return Signature{
		Hash:      hex.EncodeToString(h[:]),
		DedupKey:  key,
		KeySource: src,
		Ticker:    tick,
		NormTitle: norm,
	}
}

// NormalizeTitle lowercases, strips punctuation, and collapses whitespace so
// cosmetic republication edits don't defeat title matching.
func NormalizeTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = reTitleJunk.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// resolveDedupKey picks the canonical identifier for a URL. For regulatory
// filing hosts it tries an ordered list of accession-number encodings, first
// match wins; everything else (including unparseable URLs) keys on the raw
// URL string.
func resolveDedupKey(rawURL string) (string, KeySource) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", KeyURL
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || !isFilingHost(u.Host) {
		return raw, KeyURL
	}

	if acc := accessionFromQuery(u); acc != "" {
		return acc, KeyFilingID
	}
	if acc := accessionFromPath(u.Path); acc != "" {
		return acc, KeyFilingID
	}
	if acc := accessionFromFilename(u.Path); acc != "" {
		return acc, KeyFilingID
	}
	// No identifier pattern matched. Not an error: fall back to url-keying.
	return raw, KeyURL
}

func isFilingHost(host string) bool {
	h := strings.ToLower(host)
	if i := strings.LastIndex(h, ":"); i >= 0 {
		h = h[:i]
	}
	for _, suffix := range filingHosts {
		if h == suffix || strings.HasSuffix(h, "."+suffix) {
			return true
		}
	}
	return false
}

// accessionFromQuery handles viewer-style URLs, e.g.
// .../viewer?accession_number=0001193125-24-249922.
func accessionFromQuery(u *url.URL) string {
	for _, vals := range u.Query() {
		for _, v := range vals {
			if m := reAccessionDashed.FindString(v); m != "" {
				return m
			}
			if m := reAccessionCompact.FindString(v); m != "" {
				return redashAccession(m)
			}
		}
	}
	return ""
}

// accessionFromPath handles archive-style URLs where the accession number is
// its own path segment, dashed (.../0001193125-24-249922/doc.htm) or compact
// (.../000119312524249922/doc.htm).
func accessionFromPath(path string) string {
	for _, seg := range strings.Split(path, "/") {
		if reAccessionDashed.MatchString(seg) && len(seg) == 20 {
			return seg
		}
		if reAccessionCompact.MatchString(seg) && len(seg) == 18 {
			return redashAccession(seg)
		}
	}
	return ""
}

// accessionFromFilename handles identifiers embedded in the last path
// segment, e.g. .../0001193125-24-249922-index.htm.
func accessionFromFilename(path string) string {
	base := path
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if m := reAccessionDashed.FindString(base); m != "" {
		return m
	}
	if m := reAccessionCompact.FindString(base); m != "" {
		return redashAccession(m)
	}
	return ""
}

// redashAccession reconstructs the separated form from an 18-digit run.
func redashAccession(compact string) string {
	if len(compact) != 18 {
		return compact
	}
	return compact[:10] + "-" + compact[10:12] + "-" + compact[12:]
}
