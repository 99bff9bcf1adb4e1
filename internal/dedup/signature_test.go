package dedup

import (
	"testing"
)

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercase", in: "Theriva Biologics Reports Results", want: "theriva biologics reports results"},
		{name: "punctuation", in: "UPDATE -- Theriva, Inc. (8-K): Results!", want: "update theriva inc 8 k results"},
		{name: "whitespace", in: "  spaced \t out\n title ", want: "spaced out title"},
		{name: "empty", in: "", want: ""},
		{name: "only punctuation", in: "***", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTitle(tt.in); got != tt.want {
				t.Fatalf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Three URL encodings of the same accession number must fingerprint
// identically given the same ticker and title.
func TestSignatureFilingURLEquivalence(t *testing.T) {
	t.Parallel()
	const (
		ticker = "TOVX"
		title  = "Theriva Biologics Reports Third Quarter Results"
	)
	urls := []string{
		"https://www.sec.gov/cgi-bin/viewer?accession_number=0001193125-24-249922",
		"https://www.sec.gov/Archives/edgar/data/1216199/000119312524249922/doc.htm",
		"https://www.sec.gov/Archives/edgar/data/1216199/0001193125-24-249922/doc.htm",
		"https://www.sec.gov/Archives/edgar/data/1216199/0001193125-24-249922-index.htm",
	}

	first := NewSignature(ticker, title, urls[0])
	if first.KeySource != KeyFilingID {
		t.Fatalf("KeySource = %s, want %s", first.KeySource, KeyFilingID)
	}
	if first.DedupKey != "0001193125-24-249922" {
		t.Fatalf("DedupKey = %q, want canonical accession number", first.DedupKey)
	}
	for _, u := range urls[1:] {
		sig := NewSignature(ticker, title, u)
		if sig.Hash != first.Hash {
			t.Fatalf("hash mismatch for %s:\n  got  %s\n  want %s", u, sig.Hash, first.Hash)
		}
		if sig.DedupKey != first.DedupKey {
			t.Fatalf("DedupKey mismatch for %s: %q", u, sig.DedupKey)
		}
	}
}

func TestSignatureNonFilingURLKeysOnRawURL(t *testing.T) {
	t.Parallel()
	a := NewSignature("TOVX", "Some Title", "https://news.example.com/story/1")
	b := NewSignature("TOVX", "Some Title", "https://news.example.com/story/2")
	if a.KeySource != KeyURL || b.KeySource != KeyURL {
		t.Fatalf("expected url keying, got %s / %s", a.KeySource, b.KeySource)
	}
	if a.Hash == b.Hash {
		t.Fatal("different non-filing URLs must not collide")
	}
}

func TestSignatureFilingURLWithoutAccessionFallsBack(t *testing.T) {
	t.Parallel()
	// Ambiguous extraction is not an error; it degrades to url-keying.
	sig := NewSignature("TOVX", "Some Title", "https://www.sec.gov/cgi-bin/browse-edgar?action=getcompany")
	if sig.KeySource != KeyURL {
		t.Fatalf("KeySource = %s, want %s", sig.KeySource, KeyURL)
	}
	if sig.DedupKey == "" {
		t.Fatal("fallback dedup key must keep the raw url")
	}
}

func TestSignatureMissingTickerAccepted(t *testing.T) {
	t.Parallel()
	sig := NewSignature("", "A Headline", "https://news.example.com/x")
	if sig.IsZero() {
		t.Fatal("missing ticker must not zero the signature")
	}
	if sig.Ticker != "" {
		t.Fatalf("Ticker = %q, want empty component", sig.Ticker)
	}
}

func TestSignatureTickerCaseInsensitive(t *testing.T) {
	t.Parallel()
	a := NewSignature("tovx", "Headline", "https://news.example.com/x")
	b := NewSignature("TOVX", "Headline", "https://news.example.com/x")
	if a.Hash != b.Hash {
		t.Fatal("ticker casing must not change the signature")
	}
}

func TestSignatureUnparseableURL(t *testing.T) {
	t.Parallel()
	sig := NewSignature("TOVX", "Headline", "http://%zz-bad-url")
	if sig.KeySource != KeyURL {
		t.Fatalf("KeySource = %s, want raw-url fallback", sig.KeySource)
	}
}
