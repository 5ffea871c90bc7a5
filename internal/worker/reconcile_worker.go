package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/placipy/assessment-backend/internal/model"
	"github.com/placipy/assessment-backend/internal/repository"
	"github.com/placipy/assessment-backend/internal/service"
	"github.com/rs/zerolog"
)

const reconcilePageSize = 50

// ReconcileWorker periodically sweeps the catalog and repairs assessments
// whose entities summary drifted from their persisted batches, the state a
// failed partial write leaves behind.
type ReconcileWorker struct {
	headers    repository.RecordStore
	assessment *service.AssessmentService
	interval   time.Duration
	log        zerolog.Logger
}

// NewReconcileWorker creates a new ReconcileWorker.
func NewReconcileWorker(
	headers repository.RecordStore,
	assessment *service.AssessmentService,
	interval time.Duration,
	log zerolog.Logger,
) *ReconcileWorker {
	return &ReconcileWorker{
		headers:    headers,
		assessment: assessment,
		interval:   interval,
		log:        log.With().Str("component", "reconcile_worker").Logger(),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ReconcileWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ReconcileWorker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep walks every header page by page and repairs drifted summaries.
func (w *ReconcileWorker) sweep(ctx context.Context) {
	checked, repaired := 0, 0
	token := ""

	for {
		page, err := w.headers.ScanPage(ctx, repository.ScanFilter{
			PKPrefix:         repository.AssessmentKeyPrefix,
			SKPrefix:         repository.ScopeKeyPrefix,
			ExcludeBatchKeys: true,
		}, reconcilePageSize, token)
		if err != nil {
			w.log.Error().Err(err).Msg("Header scan failed, aborting sweep")
			return
		}

		for _, rec := range page.Records {
			var a model.Assessment
			if err := json.Unmarshal(rec.Item, &a); err != nil {
				w.log.Warn().Str("pk", rec.PK).Err(err).Msg("Skipping undecodable header")
				continue
			}

			result, err := w.assessment.Verify(ctx, a.AssessmentID)
			if err != nil {
				w.log.Error().Err(err).Str("assessment_id", a.AssessmentID).Msg("Verify failed")
				continue
			}
			checked++
			if result.Consistent {
				continue
			}

			if _, err := w.assessment.Repair(ctx, a.AssessmentID); err != nil {
				w.log.Error().Err(err).Str("assessment_id", a.AssessmentID).Msg("Repair failed")
				continue
			}
			repaired++
		}

		if !page.HasMore {
			break
		}
		token = page.NextToken
	}

	w.log.Info().Int("checked", checked).Int("repaired", repaired).Msg("Reconcile sweep finished")
}
