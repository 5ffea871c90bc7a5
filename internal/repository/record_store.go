package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Record store errors.
var (
	// ErrRecordNotFound is returned by Get when no record matches the key.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRecordExists is returned by PutIfAbsent when the key is taken.
	ErrRecordExists = errors.New("record already exists")
	// ErrInvalidPageToken is returned by ScanPage for undecodable tokens.
	ErrInvalidPageToken = errors.New("invalid page token")
)

// Record is one stored item addressed by a two-part key: a partition key
// and a sort key. Item is the raw JSON document.
type Record struct {
	PK   string
	SK   string
	Item json.RawMessage
}

// ScanFilter restricts a scan by exact match or prefix on either key part.
// Empty fields match everything. ExcludeBatchKeys drops records whose PK
// carries a batch segment (a second "#"-delimited part after the id).
type ScanFilter struct {
	PKEquals         string
	PKPrefix         string
	SKEquals         string
	SKPrefix         string
	ExcludeBatchKeys bool
}

// Page is one page of a paginated scan. NextToken is opaque to callers and
// valid only against the same filter.
type Page struct {
	Records   []Record
	NextToken string
	HasMore   bool
}

// RecordStore is the primary-key-scoped storage contract the catalog is
// built on: exact-key point operations, filtered scans, and a conditional
// single-item write. No multi-item transactions, no secondary indexes.
type RecordStore interface {
	Get(ctx context.Context, pk, sk string) (*Record, error)
	Put(ctx context.Context, rec Record) error
	// PutIfAbsent writes the record only when the key is free, atomically.
	// Returns ErrRecordExists otherwise.
	PutIfAbsent(ctx context.Context, rec Record) error
	Delete(ctx context.Context, pk, sk string) error
	Scan(ctx context.Context, filter ScanFilter) ([]Record, error)
	// ScanPage scans in key order starting after the token's position.
	// The limit applies to keys scanned, before any caller-side filtering,
	// so a page may carry fewer usable records than the limit.
	ScanPage(ctx context.Context, filter ScanFilter, limit int, token string) (*Page, error)
}

// pageToken is the decoded form of an opaque continuation token: the last
// key of the previous page.
type pageToken struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
}

func encodePageToken(pk, sk string) string {
	raw, _ := json.Marshal(pageToken{PK: pk, SK: sk})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodePageToken(token string) (pageToken, error) {
	var t pageToken
	if token == "" {
		return t, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return t, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return t, nil
}

// matches applies a ScanFilter to a key pair. Shared by the store
// implementations so predicate semantics cannot drift between them.
func (f ScanFilter) matches(pk, sk string) bool {
	if f.PKEquals != "" && pk != f.PKEquals {
		return false
	}
	if f.PKPrefix != "" && !hasPrefix(pk, f.PKPrefix) {
		return false
	}
	if f.SKEquals != "" && sk != f.SKEquals {
		return false
	}
	if f.SKPrefix != "" && !hasPrefix(sk, f.SKPrefix) {
		return false
	}
	if f.ExcludeBatchKeys && IsBatchKey(pk) {
		return false
	}
	return true
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
