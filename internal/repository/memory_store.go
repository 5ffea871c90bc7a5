package repository

import (
	"context"
	"sort"
	"sync"
)

// MemoryRecordStore is an in-memory RecordStore with the same key-order and
// filter semantics as the PostgreSQL implementation. Used by tests and for
// running the service without a database.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]Record // key: pk + "\x00" + sk
}

// NewMemoryRecordStore creates an empty in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]Record)}
}

func memKey(pk, sk string) string {
	return pk + "\x00" + sk
}

// Get retrieves a record by exact key.
func (s *MemoryRecordStore) Get(ctx context.Context, pk, sk string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[memKey(pk, sk)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := rec
	cp.Item = append([]byte(nil), rec.Item...)
	return &cp, nil
}

// Put writes a record, replacing any existing item under the same key.
func (s *MemoryRecordStore) Put(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Item = append([]byte(nil), rec.Item...)
	s.records[memKey(rec.PK, rec.SK)] = rec
	return nil
}

// PutIfAbsent writes a record only when the key is free.
func (s *MemoryRecordStore) PutIfAbsent(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey(rec.PK, rec.SK)
	if _, exists := s.records[key]; exists {
		return ErrRecordExists
	}
	rec.Item = append([]byte(nil), rec.Item...)
	s.records[key] = rec
	return nil
}

// Delete removes a record by exact key. Deleting an absent key is a no-op.
func (s *MemoryRecordStore) Delete(ctx context.Context, pk, sk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, memKey(pk, sk))
	return nil
}

// Scan returns all records matching the filter in key order.
func (s *MemoryRecordStore) Scan(ctx context.Context, filter ScanFilter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []Record
	for _, rec := range s.records {
		if filter.matches(rec.PK, rec.SK) {
			cp := rec
			cp.Item = append([]byte(nil), rec.Item...)
			records = append(records, cp)
		}
	}
	sortRecords(records)
	return records, nil
}

// ScanPage returns one page of matching records in key order, resuming
// after the position encoded in the token.
func (s *MemoryRecordStore) ScanPage(ctx context.Context, filter ScanFilter, limit int, token string) (*Page, error) {
	if limit < 1 {
		limit = 50
	}

	t, err := decodePageToken(token)
	if err != nil {
		return nil, err
	}

	all, err := s.Scan(ctx, filter)
	if err != nil {
		return nil, err
	}

	start := 0
	if t.PK != "" || t.SK != "" {
		for i, rec := range all {
			if rec.PK > t.PK || (rec.PK == t.PK && rec.SK > t.SK) {
				start = i
				break
			}
			start = i + 1
		}
	}

	page := &Page{}
	end := start + limit
	if end < len(all) {
		page.HasMore = true
	} else {
		end = len(all)
	}
	page.Records = all[start:end]
	if page.HasMore && len(page.Records) > 0 {
		last := page.Records[len(page.Records)-1]
		page.NextToken = encodePageToken(last.PK, last.SK)
	}
	return page, nil
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].PK != records[j].PK {
			return records[i].PK < records[j].PK
		}
		return records[i].SK < records[j].SK
	})
}
