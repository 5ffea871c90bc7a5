package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/placipy/assessment-backend/internal/model"
	"github.com/placipy/assessment-backend/internal/repository"
	"github.com/rs/zerolog"
)

func newTestService(t *testing.T) (*AssessmentService, *repository.MemoryRecordStore, *repository.MemoryRecordStore) {
	t.Helper()
	headers := repository.NewMemoryRecordStore()
	batches := repository.NewMemoryRecordStore()
	svc := NewAssessmentService(headers, batches, nil, nil, "placipy.app", zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, headers, batches
}

func createRequest(questions int) *model.CreateAssessmentRequest {
	raw := make([]model.RawQuestion, questions)
	for i := range raw {
		raw[i] = mcqRaw(fmt.Sprintf("question %d", i), "a", "b")
	}
	return &model.CreateAssessmentRequest{
		Title:     "Placement Screening",
		Category:  "Information Technology",
		Questions: raw,
	}
}

func TestCreateAssessment(t *testing.T) {
	svc, headers, batches := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest(120), "alice@acme.edu")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if created.AssessmentID != "ASSESS_IT_001" {
		t.Fatalf("unexpected id %q", created.AssessmentID)
	}
	if created.Scope != "acme.edu" {
		t.Fatalf("expected scope from email domain, got %q", created.Scope)
	}
	if created.CategoryCode != "IT" {
		t.Fatalf("unexpected category code %q", created.CategoryCode)
	}
	if len(created.Questions) != 120 {
		t.Fatalf("expected all questions in response, got %d", len(created.Questions))
	}
	if created.Configuration.Duration != 60 || created.Configuration.MaxAttempts != 1 || created.Configuration.PassingScore != 50 {
		t.Fatalf("defaults not applied: %+v", created.Configuration)
	}
	if created.Configuration.TotalQuestions != 120 {
		t.Fatalf("totalQuestions not derived: %d", created.Configuration.TotalQuestions)
	}
	if created.Status != model.AssessmentStatusActive {
		t.Fatalf("expected default ACTIVE status, got %q", created.Status)
	}
	if len(created.Entities) != 3 {
		t.Fatalf("120 mcq questions should yield 3 batch entities, got %d", len(created.Entities))
	}

	// Header is one record; batches are ceil(120/50) = 3 records.
	headerRecords, _ := headers.Scan(ctx, repository.ScanFilter{})
	if len(headerRecords) != 1 {
		t.Fatalf("expected 1 header record, got %d", len(headerRecords))
	}
	batchRecords, _ := batches.Scan(ctx, repository.ScanFilter{})
	if len(batchRecords) != 3 {
		t.Fatalf("expected 3 batch records, got %d", len(batchRecords))
	}
}

func TestCreateAssessmentSequentialIDs(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, createRequest(1), "alice@acme.edu")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.Create(ctx, createRequest(1), "bob@acme.edu")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if first.AssessmentID != "ASSESS_IT_001" || second.AssessmentID != "ASSESS_IT_002" {
		t.Fatalf("sequence not monotone: %q then %q", first.AssessmentID, second.AssessmentID)
	}
}

// claimRejectingStore fails every conditional write, simulating permanent
// identifier collisions.
type claimRejectingStore struct {
	*repository.MemoryRecordStore
}

func (s *claimRejectingStore) PutIfAbsent(ctx context.Context, rec repository.Record) error {
	return repository.ErrRecordExists
}

func TestCreateAssessmentAllocationExhausted(t *testing.T) {
	headers := &claimRejectingStore{repository.NewMemoryRecordStore()}
	svc := NewAssessmentService(headers, repository.NewMemoryRecordStore(), nil, nil, "placipy.app", zerolog.Nop())

	_, err := svc.Create(context.Background(), createRequest(1), "alice@acme.edu")
	if err == nil {
		t.Fatal("expected allocation exhaustion")
	}
	if !errors.Is(err, ErrAllocationExhausted) {
		t.Fatalf("expected ErrAllocationExhausted, got %v", err)
	}
}

func TestGetByID(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest(75), "alice@acme.edu")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.GetByID(ctx, created.AssessmentID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got == nil {
		t.Fatal("expected assessment")
	}
	if len(got.Questions) != 75 {
		t.Fatalf("expected 75 reassembled questions, got %d", len(got.Questions))
	}
	for i, q := range got.Questions {
		if q.QuestionNumber != i+1 {
			t.Fatalf("reassembly order broken at %d", i)
		}
	}
}

func TestGetByIDAbsent(t *testing.T) {
	svc, _, _ := newTestService(t)

	got, err := svc.GetByID(context.Background(), "ASSESS_IT_999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("absent id must return nil, got %+v", got)
	}
}

func TestListExcludesBatchRecords(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, createRequest(60), "alice@acme.edu"); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	page, err := svc.List(ctx, model.ListFilters{}, 50, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 headers, got %d", len(page.Items))
	}
	for _, a := range page.Items {
		if a.AssessmentID == "" {
			t.Fatal("batch record leaked into list")
		}
	}
}

func TestListFiltersAndPagination(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		req := createRequest(1)
		if i%2 == 0 {
			req.Difficulty = "HARD"
		}
		if _, err := svc.Create(ctx, req, "alice@acme.edu"); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	hard, err := svc.List(ctx, model.ListFilters{Difficulty: model.DifficultyHard}, 50, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(hard.Items) != 3 {
		t.Fatalf("expected 3 hard assessments, got %d", len(hard.Items))
	}

	// Page through with limit 2: 5 headers over 3 pages.
	var seen []string
	token := ""
	pages := 0
	for {
		page, err := svc.List(ctx, model.ListFilters{}, 2, token)
		if err != nil {
			t.Fatalf("page %d: %v", pages, err)
		}
		pages++
		for _, a := range page.Items {
			seen = append(seen, a.AssessmentID)
		}
		if !page.HasMore {
			break
		}
		token = page.NextToken
	}
	if pages != 3 || len(seen) != 5 {
		t.Fatalf("expected 5 headers over 3 pages, got %d over %d", len(seen), pages)
	}
}

func TestListInvalidToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.List(context.Background(), model.ListFilters{}, 10, "not-a-token!!!")
	if !errors.Is(err, repository.ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	svc, headers, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest(5), "alice@acme.edu")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(ctx, created.AssessmentID, model.UpdateAssessmentRequest{
		"title":        json.RawMessage(`"Renamed"`),
		"isPublished":  json.RawMessage(`true`),
		"assessmentId": json.RawMessage(`"ASSESS_HACK_001"`),
		"createdAt":    json.RawMessage(`"1999-01-01T00:00:00Z"`),
	}, "bob@acme.edu")
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if updated.Title != "Renamed" || !updated.IsPublished {
		t.Fatalf("fields not merged: %+v", updated.Assessment)
	}
	if updated.AssessmentID != created.AssessmentID {
		t.Fatalf("immutable assessmentId overwritten: %q", updated.AssessmentID)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("immutable createdAt overwritten: %v", updated.CreatedAt)
	}
	if updated.UpdatedBy != "bob@acme.edu" {
		t.Fatalf("updatedBy not stamped: %q", updated.UpdatedBy)
	}
	if len(updated.Questions) != 5 {
		t.Fatalf("questions must survive a field-only update, got %d", len(updated.Questions))
	}

	// Untouched fields survive the merge.
	records, _ := headers.Scan(ctx, repository.ScanFilter{})
	var stored model.Assessment
	if err := json.Unmarshal(records[0].Item, &stored); err != nil {
		t.Fatalf("decode stored header: %v", err)
	}
	if stored.Category != "Information Technology" {
		t.Fatalf("unrelated field lost: %q", stored.Category)
	}
}

func TestUpdateReplacesQuestions(t *testing.T) {
	svc, _, batches := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest(120), "alice@acme.edu")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Replace 120 MCQs with 10 coding questions.
	replacement := make([]model.RawQuestion, 10)
	for i := range replacement {
		replacement[i] = model.RawQuestion{
			Text:        fmt.Sprintf("new %d", i),
			StarterCode: "pass",
		}
	}
	rawQuestions, _ := json.Marshal(replacement)

	updated, err := svc.Update(ctx, created.AssessmentID, model.UpdateAssessmentRequest{
		"questions": rawQuestions,
	}, "alice@acme.edu")
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(updated.Questions) != 10 {
		t.Fatalf("expected 10 replacement questions, got %d", len(updated.Questions))
	}
	for _, q := range updated.Questions {
		if q.Kind != model.KindCoding {
			t.Fatalf("replacement question has kind %q", q.Kind)
		}
	}

	// Old MCQ batches are gone; one coding batch remains.
	records, _ := batches.Scan(ctx, repository.ScanFilter{})
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 batch record after replacement, got %d", len(records))
	}

	// Entities summary recomputed for the new batch set.
	if len(updated.Entities) != 1 || updated.Entities[0].Type != "Coding" {
		t.Fatalf("entities not recomputed: %+v", updated.Entities)
	}
}

func TestUpdateNonArrayQuestionsKeepsBatches(t *testing.T) {
	svc, _, batches := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest(120), "alice@acme.edu")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _ := batches.Scan(ctx, repository.ScanFilter{})
	if len(before) == 0 {
		t.Fatalf("expected batch records after create")
	}

	// A null or non-array questions value is not a replacement request and
	// must leave the existing batches untouched.
	for _, raw := range []json.RawMessage{
		json.RawMessage("null"),
		json.RawMessage(`"not-an-array"`),
	} {
		updated, err := svc.Update(ctx, created.AssessmentID, model.UpdateAssessmentRequest{
			"questions": raw,
			"title":     json.RawMessage(`"Renamed"`),
		}, "alice@acme.edu")
		if err != nil {
			t.Fatalf("update with questions=%s: %v", raw, err)
		}
		if updated.Title != "Renamed" {
			t.Fatalf("field merge skipped, title = %q", updated.Title)
		}
		if len(updated.Questions) != 120 {
			t.Fatalf("questions changed, got %d", len(updated.Questions))
		}

		after, _ := batches.Scan(ctx, repository.ScanFilter{})
		if len(after) != len(before) {
			t.Fatalf("batch records changed from %d to %d", len(before), len(after))
		}
		if len(updated.Entities) != 3 || updated.Entities[0].Type != "MCQ" {
			t.Fatalf("entities changed: %+v", updated.Entities)
		}
	}
}

func TestUpdateAbsent(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Update(context.Background(), "ASSESS_IT_999", model.UpdateAssessmentRequest{
		"title": json.RawMessage(`"x"`),
	}, "alice@acme.edu")
	if !errors.Is(err, ErrAssessmentNotFound) {
		t.Fatalf("expected ErrAssessmentNotFound, got %v", err)
	}
}

func TestDeleteRemovesEverything(t *testing.T) {
	svc, headers, batches := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest(120), "alice@acme.edu")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, created.AssessmentID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	headerRecords, _ := headers.Scan(ctx, repository.ScanFilter{})
	batchRecords, _ := batches.Scan(ctx, repository.ScanFilter{})
	if len(headerRecords) != 0 || len(batchRecords) != 0 {
		t.Fatalf("orphans left: %d headers, %d batches", len(headerRecords), len(batchRecords))
	}

	if err := svc.Delete(ctx, created.AssessmentID); !errors.Is(err, ErrAssessmentNotFound) {
		t.Fatalf("second delete should report not found, got %v", err)
	}
}

func TestVerifyAndRepair(t *testing.T) {
	svc, headers, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest(60), "alice@acme.edu")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := svc.Verify(ctx, created.AssessmentID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Consistent {
		t.Fatalf("fresh assessment reported inconsistent: %+v", result)
	}
	if result.BatchRecords != 2 {
		t.Fatalf("expected 2 batch records, got %d", result.BatchRecords)
	}

	// Corrupt the stored entities summary.
	records, _ := headers.Scan(ctx, repository.ScanFilter{})
	var item map[string]json.RawMessage
	if err := json.Unmarshal(records[0].Item, &item); err != nil {
		t.Fatalf("decode header: %v", err)
	}
	item["entities"] = json.RawMessage(`[]`)
	corrupted, _ := json.Marshal(item)
	if err := headers.Put(ctx, repository.Record{PK: records[0].PK, SK: records[0].SK, Item: corrupted}); err != nil {
		t.Fatalf("corrupt header: %v", err)
	}

	result, err = svc.Verify(ctx, created.AssessmentID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Consistent {
		t.Fatal("corrupted summary reported consistent")
	}

	repaired, err := svc.Repair(ctx, created.AssessmentID)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !repaired.Consistent {
		t.Fatalf("repair did not restore consistency: %+v", repaired)
	}

	result, err = svc.Verify(ctx, created.AssessmentID)
	if err != nil {
		t.Fatalf("verify after repair: %v", err)
	}
	if !result.Consistent {
		t.Fatal("verify still inconsistent after repair")
	}
}
