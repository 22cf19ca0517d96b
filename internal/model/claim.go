package model

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

const (
	// ClaimIDLength is the number of hex characters kept from the claim digest
	ClaimIDLength = 8

	// FreshnessWindow is how long a cached analysis is served without refresh
	FreshnessWindow = 24 * time.Hour
)

var claimIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]{8}$`)

// Classification is the verdict label assigned to a claim
type Classification string

const (
	ClassificationAccurate   Classification = "Accurate"
	ClassificationMisleading Classification = "Misleading"
	ClassificationFalse      Classification = "False"
	ClassificationDebated    Classification = "Debated"
)

// Classifications lists the closed set of allowed labels in prompt order
var Classifications = []Classification{
	ClassificationAccurate,
	ClassificationMisleading,
	ClassificationFalse,
	ClassificationDebated,
}

// ParseClassification matches s against the allowed labels (case-sensitive)
func ParseClassification(s string) (Classification, bool) {
	for _, c := range Classifications {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Analysis is the validated structured verdict produced by the upstream model
type Analysis struct {
	Answer         string         `json:"answer"`
	Sources        []string       `json:"sources"`
	Classification Classification `json:"classification"`
}

// ClaimRecord is a cached analysis for one claim text
type ClaimRecord struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Analysis            // answer, sources, classification
	Timestamp time.Time `json:"-"`
}

// NewClaimRecord builds a record for query, deriving its ID
func NewClaimRecord(query string, analysis Analysis, now time.Time) *ClaimRecord {
	return &ClaimRecord{
		ID:        ClaimID(query),
		Query:     query,
		Analysis:  analysis,
		Timestamp: now,
	}
}

// IsFresh reports whether the record is younger than the freshness window
func (r *ClaimRecord) IsFresh(now time.Time) bool {
	return now.Sub(r.Timestamp) < FreshnessWindow
}

// ClaimStamp is the (id, timestamp) pair used for sitemap generation
type ClaimStamp struct {
	ID        string
	Timestamp time.Time
}

// NormalizeClaim trims surrounding whitespace from submitted claim text
func NormalizeClaim(text string) string {
	return strings.TrimSpace(text)
}

// ClaimID derives the short identifier of a claim: the first 8 hex
// characters of the SHA-256 digest of the normalized text.
func ClaimID(text string) string {
	hash := sha256.Sum256([]byte(NormalizeClaim(text)))
	return hex.EncodeToString(hash[:])[:ClaimIDLength]
}

// ValidClaimID reports whether id has the shape of a claim identifier
func ValidClaimID(id string) bool {
	return claimIDPattern.MatchString(id)
}
