package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/placipy/assessment-backend/internal/event"
	"github.com/placipy/assessment-backend/internal/model"
	"github.com/placipy/assessment-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain Errors
var (
	ErrAssessmentNotFound  = errors.New("assessment not found")
	ErrAllocationExhausted = errors.New("assessment id allocation exhausted")
)

// CatalogEventsChannel is the Redis pub/sub channel carrying catalog change
// events for the WebSocket stream.
const CatalogEventsChannel = "catalog:events"

// ChangeEvent is the payload published on every catalog mutation.
type ChangeEvent struct {
	Type         string `json:"type"`
	AssessmentID string `json:"assessmentId"`
	Scope        string `json:"scope"`
	At           string `json:"at"`
}

// immutableFields are rejected from update payloads. Questions are handled
// separately via the destructive batch replacement.
var immutableFields = map[string]bool{
	"assessmentId": true,
	"createdAt":    true,
	"questions":    true,
	"PK":           true,
	"SK":           true,
	"pk":           true,
	"sk":           true,
}

// AssessmentService orchestrates the assessment catalog: identifier
// allocation, question classification, batch packing, and the five public
// operations plus verify/repair. It is the sole writer of header and batch
// records; stats stay caller-owned, entities are recomputed on every
// question mutation.
type AssessmentService struct {
	headers      repository.RecordStore
	batches      repository.RecordStore
	events       *event.Publisher // nil when AMQP is not configured
	rdb          *redis.Client    // nil in tests
	defaultScope string
	log          zerolog.Logger
	now          func() time.Time
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(
	headers repository.RecordStore,
	batches repository.RecordStore,
	events *event.Publisher,
	rdb *redis.Client,
	defaultScope string,
	log zerolog.Logger,
) *AssessmentService {
	return &AssessmentService{
		headers:      headers,
		batches:      batches,
		events:       events,
		rdb:          rdb,
		defaultScope: defaultScope,
		log:          log.With().Str("component", "assessment_service").Logger(),
		now:          time.Now,
	}
}

// Create allocates an identifier, classifies and packs the supplied
// questions, writes the header and one record per non-empty batch, and
// returns the header merged with the full question list.
//
// The header write is a conditional claim: a colliding identifier bumps the
// sequence and re-claims, up to MaxIDAttempts. Batch writes after a claimed
// header are not rolled back on failure; the reconcile worker repairs the
// entities summary afterwards.
func (s *AssessmentService) Create(ctx context.Context, req *model.CreateAssessmentRequest, createdBy string) (*model.AssessmentWithQuestions, error) {
	difficulty := model.Difficulty(req.Difficulty)
	if difficulty == "" {
		difficulty = model.DifficultyMedium
	}

	questions := ClassifyQuestions(req.Questions, difficulty)
	packed := PackQuestions(questions)
	entities := BuildEntities(packed)

	code := CategoryCode(req.Category)
	scope := ScopeFromIdentity(createdBy, s.defaultScope)

	seq, err := nextSequence(ctx, s.headers, code, scope)
	if err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}

	now := s.now().UTC()
	assessment := model.Assessment{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		CategoryCode:  code,
		Difficulty:    difficulty,
		Tags:          tagsFor(questions),
		Kind:          model.AssessmentKind,
		Scope:         scope,
		Entities:      entities,
		Configuration: buildConfiguration(req, len(questions)),
		Scheduling:    buildScheduling(req.Scheduling),
		Target: model.Target{
			Departments: orEmpty(req.TargetDepartments),
			Years:       orEmpty(req.TargetYears),
		},
		Status:        model.AssessmentStatus(req.Status),
		IsPublished:   req.IsPublished,
		CreatedBy:     createdBy,
		CreatedByName: req.CreatedByName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if assessment.Status == "" {
		assessment.Status = model.AssessmentStatusActive
	}
	if assessment.CreatedByName == "" {
		assessment.CreatedByName = createdBy
	}

	// Claim the identifier. PutIfAbsent is atomic, so two racing creators
	// in the same category and scope cannot both win the same number.
	claimed := false
	for attempt := 0; attempt < MaxIDAttempts; attempt++ {
		assessment.AssessmentID = FormatAssessmentID(code, seq)

		item, err := json.Marshal(assessment)
		if err != nil {
			return nil, fmt.Errorf("create assessment: marshal header: %w", err)
		}

		err = s.headers.PutIfAbsent(ctx, repository.Record{
			PK:   repository.HeaderPK(assessment.AssessmentID),
			SK:   repository.ScopeSK(scope),
			Item: item,
		})
		if errors.Is(err, repository.ErrRecordExists) {
			seq++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create assessment %s: claim header: %w", assessment.AssessmentID, err)
		}
		claimed = true
		break
	}
	if !claimed {
		return nil, fmt.Errorf("%w: category %s, scope %s, %d attempts", ErrAllocationExhausted, code, scope, MaxIDAttempts)
	}

	if err := s.writeBatches(ctx, assessment.AssessmentID, scope, packed); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("assessment_id", assessment.AssessmentID).
		Str("scope", scope).
		Int("questions", len(questions)).
		Int("batches", len(packed)).
		Msg("Assessment created")

	s.publishChange(ctx, "assessment.created", assessment.AssessmentID, scope)

	return &model.AssessmentWithQuestions{Assessment: assessment, Questions: questions}, nil
}

// GetByID fetches a header by exact id, scanning across scopes, and
// reassembles its question list from the batch records under its key
// prefix. Returns (nil, nil) when no assessment matches.
func (s *AssessmentService) GetByID(ctx context.Context, assessmentID string) (*model.AssessmentWithQuestions, error) {
	header, err := s.findHeader(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("fetch assessment %s: %w", assessmentID, err)
	}
	if header == nil {
		return nil, nil
	}

	var assessment model.Assessment
	if err := json.Unmarshal(header.Item, &assessment); err != nil {
		return nil, fmt.Errorf("fetch assessment %s: decode header: %w", assessmentID, err)
	}

	questions, err := s.loadQuestions(ctx, assessmentID, header.SK)
	if err != nil {
		return nil, fmt.Errorf("fetch assessment %s: %w", assessmentID, err)
	}

	return &model.AssessmentWithQuestions{Assessment: assessment, Questions: questions}, nil
}

// List scans header records page by page, excluding batch-keyed records,
// and applies the filters as a scan-time predicate. The page limit applies
// to keys scanned before filtering, so a page may hold fewer items than
// the limit even when more pages follow.
func (s *AssessmentService) List(ctx context.Context, filters model.ListFilters, pageSize int, token string) (*model.AssessmentPage, error) {
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 100 {
		pageSize = 100
	}

	page, err := s.headers.ScanPage(ctx, repository.ScanFilter{
		PKPrefix:         repository.AssessmentKeyPrefix,
		SKPrefix:         repository.ScopeKeyPrefix,
		ExcludeBatchKeys: true,
	}, pageSize, token)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}

	items := make([]model.Assessment, 0, len(page.Records))
	for _, rec := range page.Records {
		var a model.Assessment
		if err := json.Unmarshal(rec.Item, &a); err != nil {
			s.log.Warn().Err(err).Str("pk", rec.PK).Msg("Skipping undecodable header record")
			continue
		}
		if filters.Match(&a) {
			items = append(items, a)
		}
	}

	return &model.AssessmentPage{
		Items:     items,
		NextToken: page.NextToken,
		HasMore:   page.HasMore,
	}, nil
}

// Update merges the supplied partial field set into the stored header,
// rejecting immutable fields, and stamps updatedAt/updatedBy. A "questions"
// key triggers destructive replacement: every existing batch record is
// deleted, the full replacement list is re-packed from scratch, and the
// recomputed entities summary is persisted as a second, separate write.
func (s *AssessmentService) Update(ctx context.Context, assessmentID string, updates model.UpdateAssessmentRequest, updatedBy string) (*model.AssessmentWithQuestions, error) {
	header, err := s.findHeader(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("update assessment %s: %w", assessmentID, err)
	}
	if header == nil {
		return nil, fmt.Errorf("update assessment %s: %w", assessmentID, ErrAssessmentNotFound)
	}

	var item map[string]json.RawMessage
	if err := json.Unmarshal(header.Item, &item); err != nil {
		return nil, fmt.Errorf("update assessment %s: decode header: %w", assessmentID, err)
	}

	for key, value := range updates {
		if immutableFields[key] {
			continue
		}
		item[key] = value
	}
	item["updatedAt"], _ = json.Marshal(s.now().UTC())
	if updatedBy != "" {
		item["updatedBy"], _ = json.Marshal(updatedBy)
	}

	merged, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("update assessment %s: marshal header: %w", assessmentID, err)
	}
	if err := s.headers.Put(ctx, repository.Record{PK: header.PK, SK: header.SK, Item: merged}); err != nil {
		return nil, fmt.Errorf("update assessment %s: write header: %w", assessmentID, err)
	}

	scope := repository.ScopeFromSK(header.SK)

	if rawQuestions, ok := updates["questions"]; ok && isJSONArray(rawQuestions) {
		var replacement []model.RawQuestion
		if err := json.Unmarshal(rawQuestions, &replacement); err != nil {
			return nil, fmt.Errorf("update assessment %s: decode questions: %w", assessmentID, err)
		}

		if err := s.deleteBatches(ctx, assessmentID, header.SK); err != nil {
			return nil, fmt.Errorf("update assessment %s: %w", assessmentID, err)
		}

		var difficulty model.Difficulty
		if raw, ok := item["difficulty"]; ok {
			_ = json.Unmarshal(raw, &difficulty)
		}

		questions := ClassifyQuestions(replacement, difficulty)
		packed := PackQuestions(questions)
		if err := s.writeBatches(ctx, assessmentID, scope, packed); err != nil {
			return nil, err
		}

		// Recompute entities from the new batch set and persist them as a
		// second write, separate from the field merge above.
		item["entities"], _ = json.Marshal(BuildEntities(packed))
		merged, err = json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("update assessment %s: marshal entities: %w", assessmentID, err)
		}
		if err := s.headers.Put(ctx, repository.Record{PK: header.PK, SK: header.SK, Item: merged}); err != nil {
			return nil, fmt.Errorf("update assessment %s: write entities: %w", assessmentID, err)
		}
	}

	var updated model.Assessment
	if err := json.Unmarshal(merged, &updated); err != nil {
		return nil, fmt.Errorf("update assessment %s: decode merged header: %w", assessmentID, err)
	}

	questions, err := s.loadQuestions(ctx, assessmentID, header.SK)
	if err != nil {
		return nil, fmt.Errorf("update assessment %s: %w", assessmentID, err)
	}

	s.log.Info().
		Str("assessment_id", assessmentID).
		Int("fields", len(updates)).
		Msg("Assessment updated")

	s.publishChange(ctx, "assessment.updated", assessmentID, scope)

	return &model.AssessmentWithQuestions{Assessment: updated, Questions: questions}, nil
}

// isJSONArray reports whether raw is a JSON array. A null or non-array
// questions value must not trigger the destructive batch replacement.
func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// Delete removes the header and every batch record under its key prefix.
// Removal is immediate and irreversible; no batch may outlive its header.
func (s *AssessmentService) Delete(ctx context.Context, assessmentID string) error {
	header, err := s.findHeader(ctx, assessmentID)
	if err != nil {
		return fmt.Errorf("delete assessment %s: %w", assessmentID, err)
	}
	if header == nil {
		return fmt.Errorf("delete assessment %s: %w", assessmentID, ErrAssessmentNotFound)
	}

	if err := s.headers.Delete(ctx, header.PK, header.SK); err != nil {
		return fmt.Errorf("delete assessment %s: delete header: %w", assessmentID, err)
	}
	if err := s.deleteBatches(ctx, assessmentID, header.SK); err != nil {
		return fmt.Errorf("delete assessment %s: %w", assessmentID, err)
	}

	s.log.Info().Str("assessment_id", assessmentID).Msg("Assessment deleted")

	s.publishChange(ctx, "assessment.deleted", assessmentID, repository.ScopeFromSK(header.SK))
	return nil
}

// Verify recomputes the entities summary from the batch records actually
// present in the store and compares it with the header's stored summary.
// A mismatch marks the detectable inconsistent state a failed partial
// write leaves behind.
func (s *AssessmentService) Verify(ctx context.Context, assessmentID string) (*model.VerifyResult, error) {
	header, err := s.findHeader(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("verify assessment %s: %w", assessmentID, err)
	}
	if header == nil {
		return nil, fmt.Errorf("verify assessment %s: %w", assessmentID, ErrAssessmentNotFound)
	}

	var assessment model.Assessment
	if err := json.Unmarshal(header.Item, &assessment); err != nil {
		return nil, fmt.Errorf("verify assessment %s: decode header: %w", assessmentID, err)
	}

	records, err := s.batchRecords(ctx, assessmentID, header.SK)
	if err != nil {
		return nil, fmt.Errorf("verify assessment %s: %w", assessmentID, err)
	}

	recomputed := BuildEntities(PackQuestions(UnpackQuestions(records)))

	return &model.VerifyResult{
		AssessmentID: assessmentID,
		Consistent:   entitiesEqual(assessment.Entities, recomputed),
		Stored:       assessment.Entities,
		Recomputed:   recomputed,
		BatchRecords: len(records),
	}, nil
}

// Repair overwrites a drifted entities summary with the one recomputed
// from the persisted batch records. Consistent assessments are untouched.
func (s *AssessmentService) Repair(ctx context.Context, assessmentID string) (*model.VerifyResult, error) {
	result, err := s.Verify(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if result.Consistent {
		return result, nil
	}

	header, err := s.findHeader(ctx, assessmentID)
	if err != nil || header == nil {
		return nil, fmt.Errorf("repair assessment %s: %w", assessmentID, ErrAssessmentNotFound)
	}

	var item map[string]json.RawMessage
	if err := json.Unmarshal(header.Item, &item); err != nil {
		return nil, fmt.Errorf("repair assessment %s: decode header: %w", assessmentID, err)
	}
	item["entities"], _ = json.Marshal(result.Recomputed)
	item["updatedAt"], _ = json.Marshal(s.now().UTC())

	merged, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("repair assessment %s: marshal header: %w", assessmentID, err)
	}
	if err := s.headers.Put(ctx, repository.Record{PK: header.PK, SK: header.SK, Item: merged}); err != nil {
		return nil, fmt.Errorf("repair assessment %s: write header: %w", assessmentID, err)
	}

	s.log.Warn().
		Str("assessment_id", assessmentID).
		Int("batch_records", result.BatchRecords).
		Msg("Entities summary repaired")

	s.publishChange(ctx, "assessment.repaired", assessmentID, repository.ScopeFromSK(header.SK))

	result.Stored = result.Recomputed
	result.Consistent = true
	return result, nil
}

// findHeader locates a header record by exact id without knowing its
// scope. Returns (nil, nil) when absent.
func (s *AssessmentService) findHeader(ctx context.Context, assessmentID string) (*repository.Record, error) {
	records, err := s.headers.Scan(ctx, repository.ScanFilter{
		PKEquals: repository.HeaderPK(assessmentID),
		SKPrefix: repository.ScopeKeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("scan header: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (s *AssessmentService) batchRecords(ctx context.Context, assessmentID, sk string) ([]model.BatchRecord, error) {
	records, err := s.batches.Scan(ctx, repository.ScanFilter{
		PKPrefix: repository.BatchPKPrefix(assessmentID),
		SKEquals: sk,
	})
	if err != nil {
		return nil, fmt.Errorf("scan batches: %w", err)
	}

	batchRecords := make([]model.BatchRecord, 0, len(records))
	for _, rec := range records {
		var br model.BatchRecord
		if err := json.Unmarshal(rec.Item, &br); err != nil {
			return nil, fmt.Errorf("decode batch %s: %w", rec.PK, err)
		}
		batchRecords = append(batchRecords, br)
	}
	return batchRecords, nil
}

func (s *AssessmentService) loadQuestions(ctx context.Context, assessmentID, sk string) ([]model.Question, error) {
	records, err := s.batchRecords(ctx, assessmentID, sk)
	if err != nil {
		return nil, err
	}
	questions := UnpackQuestions(records)
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, nil
}

// writeBatches persists one record per non-empty batch. Writes already
// committed before a failure are not rolled back.
func (s *AssessmentService) writeBatches(ctx context.Context, assessmentID, scope string, packed []Batch) error {
	for _, b := range packed {
		item, err := json.Marshal(model.BatchRecord{
			AssessmentID: assessmentID,
			Scope:        scope,
			EntityType:   b.Label(),
			Questions:    b.Questions,
		})
		if err != nil {
			return fmt.Errorf("write assessment %s: marshal batch %s: %w", assessmentID, b.Label(), err)
		}
		err = s.batches.Put(ctx, repository.Record{
			PK:   repository.BatchPK(assessmentID, b.Kind, b.Index),
			SK:   repository.ScopeSK(scope),
			Item: item,
		})
		if err != nil {
			return fmt.Errorf("write assessment %s: batch %s: %w", assessmentID, b.Label(), err)
		}
	}
	return nil
}

func (s *AssessmentService) deleteBatches(ctx context.Context, assessmentID, sk string) error {
	records, err := s.batches.Scan(ctx, repository.ScanFilter{
		PKPrefix: repository.BatchPKPrefix(assessmentID),
		SKEquals: sk,
	})
	if err != nil {
		return fmt.Errorf("scan batches: %w", err)
	}
	for _, rec := range records {
		if err := s.batches.Delete(ctx, rec.PK, rec.SK); err != nil {
			return fmt.Errorf("delete batch %s: %w", rec.PK, err)
		}
	}
	return nil
}

// publishChange fans a change event out to AMQP and to the Redis channel
// feeding the WebSocket stream. Publication failures are logged, never
// surfaced: the store write already succeeded.
func (s *AssessmentService) publishChange(ctx context.Context, eventType, assessmentID, scope string) {
	ev := ChangeEvent{
		Type:         eventType,
		AssessmentID: assessmentID,
		Scope:        scope,
		At:           s.now().UTC().Format(time.RFC3339),
	}

	if s.events != nil {
		if err := s.events.Publish(eventType, ev); err != nil {
			s.log.Error().Err(err).Str("type", eventType).Msg("AMQP publish failed")
		}
	}
	if s.rdb != nil {
		payload, _ := json.Marshal(ev)
		if err := s.rdb.Publish(ctx, CatalogEventsChannel, payload).Err(); err != nil {
			s.log.Error().Err(err).Str("type", eventType).Msg("Redis publish failed")
		}
	}
}

func tagsFor(questions []model.Question) []string {
	hasMCQ, hasCoding := false, false
	for _, q := range questions {
		switch q.Kind {
		case model.KindMCQ:
			hasMCQ = true
		case model.KindCoding:
			hasCoding = true
		}
	}

	var tags []string
	if hasMCQ {
		tags = append(tags, "MCQ")
	}
	if hasCoding {
		tags = append(tags, "Coding")
	}
	if len(tags) == 0 {
		tags = []string{"MCQ"}
	}
	return tags
}

func buildConfiguration(req *model.CreateAssessmentRequest, questionCount int) model.Configuration {
	cfg := model.Configuration{
		Duration:           req.Duration,
		MaxAttempts:        req.MaxAttempts,
		PassingScore:       req.PassingScore,
		RandomizeQuestions: req.RandomizeQuestions,
		TotalQuestions:     req.TotalQuestions,
	}
	if cfg.Duration == 0 {
		cfg.Duration = 60
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.PassingScore == 0 {
		cfg.PassingScore = 50
	}
	if cfg.TotalQuestions == 0 {
		cfg.TotalQuestions = questionCount
	}
	return cfg
}

func buildScheduling(sched model.Scheduling) model.Scheduling {
	if sched.Timezone == "" {
		sched.Timezone = "Asia/Kolkata"
	}
	return sched
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func entitiesEqual(a, b []model.Entity) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
