package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Source kinds recorded in Metadata.
const (
	SourceFile = "file"
	SourceURL  = "url"
	SourceText = "text"
)

// Metadata describes where a product description came from.
type Metadata struct {
	Kind      string `json:"kind"`
	Location  string `json:"location,omitempty"` // file path or URL
	Timestamp string `json:"timestamp"`          // RFC3339
	Hash      string `json:"hash"`               // SHA256 hex digest of the cleaned text
	Chars     int    `json:"chars"`
	Rendered  bool   `json:"rendered,omitempty"` // text came from a headless render
}

// NewMetadata creates Metadata for cleaned content.
func NewMetadata(content, kind, location string, now time.Time) *Metadata {
	return &Metadata{
		Kind:      kind,
		Location:  location,
		Timestamp: now.UTC().Format(time.RFC3339),
		Hash:      computeHash(content),
		Chars:     len([]rune(content)),
	}
}

// Source is the label stored on the session: the location when there is
// one, otherwise the kind.
func (m *Metadata) Source() string {
	if m.Location != "" {
		return m.Location
	}
	return m.Kind
}

// ShortHash is the first 12 hex digits of Hash.
func (m *Metadata) ShortHash() string {
	if len(m.Hash) < 12 {
		return m.Hash
	}
	return m.Hash[:12]
}

func computeHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// ToJSON marshals Metadata to pretty-printed JSON.
func (m *Metadata) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata to JSON: %w", err)
	}
	return data, nil
}
