package service

import (
	"fmt"
	"sort"

	"github.com/placipy/assessment-backend/internal/model"
)

// BatchCapacity is the maximum number of questions persisted per batch
// record. The last batch of a kind may be partially filled; empty batches
// are never persisted.
const BatchCapacity = 50

// CodingEntityBatch is the generic label of the single coding entity.
// Coding batches are summarized by one entity regardless of batch count.
const CodingEntityBatch = "programming_batch_1"

// Batch is one packed slice of a kind's questions, ready for storage.
// Indices are contiguous per kind, starting at 1.
type Batch struct {
	Kind      model.QuestionKind
	Index     int
	Questions []model.Question
}

// Label returns the batch discriminator stored on the record, e.g.
// "mcq_batch_2".
func (b Batch) Label() string {
	return fmt.Sprintf("%s_batch_%d", b.Kind, b.Index)
}

// PackQuestions partitions classified questions into batches. Kinds are
// packed independently, preserving relative order within each kind, so a
// kind switch never splits a batch. Unclassified questions are not packed;
// they exist only in the create/update response, never in storage.
func PackQuestions(questions []model.Question) []Batch {
	var batches []Batch
	for _, kind := range []model.QuestionKind{model.KindMCQ, model.KindCoding} {
		var ofKind []model.Question
		for _, q := range questions {
			if q.Kind == kind {
				ofKind = append(ofKind, q)
			}
		}
		for i := 0; i < len(ofKind); i += BatchCapacity {
			end := i + BatchCapacity
			if end > len(ofKind) {
				end = len(ofKind)
			}
			batches = append(batches, Batch{
				Kind:      kind,
				Index:     i/BatchCapacity + 1,
				Questions: ofKind[i:end],
			})
		}
	}
	return batches
}

// BuildEntities derives the entities summary from a packed batch set. MCQ
// subcategories are aggregated globally across all MCQ questions; every MCQ
// batch entity carries that same set. All coding batches collapse into at
// most one generically-labeled entity. Zero batches of a kind means no
// entity for that kind.
func BuildEntities(batches []Batch) []model.Entity {
	subcategories := map[string]bool{}
	hasCoding := false
	var entities []model.Entity

	for _, b := range batches {
		if b.Kind != model.KindMCQ {
			continue
		}
		for _, q := range b.Questions {
			subcategories[q.Subcategory] = true
		}
	}

	subs := make([]string, 0, len(subcategories))
	for s := range subcategories {
		subs = append(subs, s)
	}
	sort.Strings(subs)

	for _, b := range batches {
		switch b.Kind {
		case model.KindMCQ:
			entities = append(entities, model.Entity{
				Type:          "MCQ",
				Subcategories: subs,
				Batch:         b.Label(),
			})
		case model.KindCoding:
			hasCoding = true
		}
	}

	if hasCoding {
		entities = append(entities, model.Entity{
			Type:        "Coding",
			Description: "Programming questions",
			Batch:       CodingEntityBatch,
		})
	}

	return entities
}

// UnpackQuestions reassembles an ordered question list from scanned batch
// records. Arrival order is unspecified; this is the sole place ordering
// is restored, by questionNumber ascending.
func UnpackQuestions(records []model.BatchRecord) []model.Question {
	var questions []model.Question
	for _, rec := range records {
		questions = append(questions, rec.Questions...)
	}
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].QuestionNumber < questions[j].QuestionNumber
	})
	return questions
}
