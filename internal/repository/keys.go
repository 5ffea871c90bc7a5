package repository

import (
	"fmt"
	"strings"

	"github.com/placipy/assessment-backend/internal/model"
)

// Key scheme. Headers are keyed (ASSESSMENT#<id>, CLIENT#<scope>); batch
// records append a batch segment to the header PK. The prefix structure is
// what makes scan-based reassembly possible and is a hard compatibility
// constraint against pre-existing stored data.
const (
	AssessmentKeyPrefix = "ASSESSMENT#"
	ScopeKeyPrefix      = "CLIENT#"
)

// HeaderPK returns the partition key of an assessment header record.
func HeaderPK(assessmentID string) string {
	return AssessmentKeyPrefix + assessmentID
}

// ScopeSK returns the sort key for a tenant scope.
func ScopeSK(scope string) string {
	return ScopeKeyPrefix + scope
}

// BatchPK returns the partition key of a question batch record, e.g.
// ASSESSMENT#ASSESS_IT_001#MCQ_BATCH_2.
func BatchPK(assessmentID string, kind model.QuestionKind, index int) string {
	return fmt.Sprintf("%s%s#%s_BATCH_%d", AssessmentKeyPrefix, assessmentID, strings.ToUpper(string(kind)), index)
}

// BatchPKPrefix returns the prefix shared by all batch records of an
// assessment.
func BatchPKPrefix(assessmentID string) string {
	return AssessmentKeyPrefix + assessmentID + "#"
}

// IsBatchKey reports whether a partition key addresses a batch record
// rather than a header: batch PKs carry a second "#" segment.
func IsBatchKey(pk string) bool {
	return strings.Count(pk, "#") > 1
}

// AssessmentIDFromPK extracts the assessment id from a header or batch PK.
// Returns "" if the key is not under the assessment prefix.
func AssessmentIDFromPK(pk string) string {
	if !strings.HasPrefix(pk, AssessmentKeyPrefix) {
		return ""
	}
	rest := strings.TrimPrefix(pk, AssessmentKeyPrefix)
	if i := strings.Index(rest, "#"); i >= 0 {
		return rest[:i]
	}
	return rest
}

// ScopeFromSK extracts the tenant scope from a sort key.
func ScopeFromSK(sk string) string {
	return strings.TrimPrefix(sk, ScopeKeyPrefix)
}
