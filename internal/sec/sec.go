// Package sec holds the EDGAR vocabulary shared by the 13F pipeline:
// filing references, holding records, quarter tokens, archive URLs and
// the error taxonomy, plus the Fetcher that retrieves filings and the
// quarterly index.
//
// SEC asks every client to send a descriptive User-Agent and to stay
// under 10 requests/second; the transport in internal/infra enforces both.
package sec

import (
	"fmt"
	"strings"
)

const (
	// DefaultBaseURL is the EDGAR archive root every document path is relative to.
	DefaultBaseURL = "https://www.sec.gov/Archives"

	// DefaultFormType is the filing type the pipeline extracts holdings from.
	DefaultFormType = "13F-HR"
)

// Filing is one reference from the quarterly form index.
// CIK and Name are taken verbatim from the index line.
type Filing struct {
	CIK  string `json:"cik"`
	Name string `json:"name"`
	Path string `json:"path"` // relative to the archive root
}

// Record is one holding row. CIK and Name always come from the Filing
// that produced it, never from the filing document.
type Record struct {
	CIK      string `json:"cik"`
	Name     string `json:"name"`
	CUSIP    string `json:"cusip"`
	Issuer   string `json:"issuer"`
	Value    string `json:"value"`
	Quantity string `json:"quantity"`
	Type     string `json:"type"`
}

// IndexURL returns the form.idx location for a year and quarter.
func IndexURL(baseURL string, year int, q Quarter) string {
	return fmt.Sprintf("%s/edgar/full-index/%d/%s/form.idx", strings.TrimRight(baseURL, "/"), year, q)
}

// DocumentURL resolves an index document path against the archive root.
// Absolute URLs are returned unchanged.
func DocumentURL(baseURL, pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return pathOrURL
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(pathOrURL, "/")
}

// TrimCIK strips surrounding quotes, whitespace and leading zeros so that
// "0000123456" and "123456" compare equal.
func TrimCIK(cik string) string {
	cik = strings.Trim(strings.TrimSpace(cik), `"`)
	cik = strings.TrimLeft(cik, "0")
	if cik == "" {
		return "0"
	}
	return cik
}

// IsNumeric reports whether s is a non-empty run of ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
