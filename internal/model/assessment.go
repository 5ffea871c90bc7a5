package model

import (
	"encoding/json"
	"time"
)

// Difficulty enumerates assessment and question difficulty levels.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// AssessmentStatus enumerates the lifecycle states of an assessment.
type AssessmentStatus string

const (
	AssessmentStatusActive   AssessmentStatus = "ACTIVE"
	AssessmentStatusInactive AssessmentStatus = "INACTIVE"
	AssessmentStatusArchived AssessmentStatus = "ARCHIVED"
)

// AssessmentKind is the fixed discriminator stored on every header record.
// Currently a single constant; kept as a field for stored-data compatibility.
const AssessmentKind = "DEPARTMENT_WISE"

// Entity is one entry of the derived entities summary: which batch records
// exist for an assessment and what they contain. Recomputed from the actual
// batch set on every question mutation, never patched incrementally.
type Entity struct {
	Type          string   `json:"type"`
	Subcategories []string `json:"subcategories,omitempty"`
	Description   string   `json:"description,omitempty"`
	Batch         string   `json:"batch"`
}

// Configuration holds the run parameters of an assessment.
type Configuration struct {
	Duration           int  `json:"duration"`
	MaxAttempts        int  `json:"maxAttempts"`
	PassingScore       int  `json:"passingScore"`
	RandomizeQuestions bool `json:"randomizeQuestions"`
	TotalQuestions     int  `json:"totalQuestions"`
}

// Scheduling holds the availability window of an assessment.
type Scheduling struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Timezone  string `json:"timezone"`
}

// Target identifies the sub-groups and cohorts an assessment is aimed at.
type Target struct {
	Departments []string `json:"departments"`
	Years       []string `json:"years"`
}

// Stats holds aggregate participation counters. They are caller-maintained:
// the catalog stores whatever it is given and never recomputes them.
type Stats struct {
	AvgScore          float64 `json:"avgScore"`
	Completed         int     `json:"completed"`
	HighestScore      float64 `json:"highestScore"`
	TotalParticipants int     `json:"totalParticipants"`
}

// Assessment is the per-assessment header record. Exactly one header exists
// per assessmentId within a scope.
type Assessment struct {
	AssessmentID  string           `json:"assessmentId"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Category      string           `json:"category"`
	CategoryCode  string           `json:"categoryCode"`
	Difficulty    Difficulty       `json:"difficulty"`
	Tags          []string         `json:"tags"`
	Kind          string           `json:"kind"`
	Scope         string           `json:"scope"`
	Entities      []Entity         `json:"entities"`
	Configuration Configuration    `json:"configuration"`
	Scheduling    Scheduling       `json:"scheduling"`
	Target        Target           `json:"target"`
	Stats         Stats            `json:"stats"`
	Status        AssessmentStatus `json:"status"`
	IsPublished   bool             `json:"isPublished"`
	CreatedBy     string           `json:"createdBy"`
	CreatedByName string           `json:"createdByName"`
	UpdatedBy     string           `json:"updatedBy,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// AssessmentWithQuestions is a header merged with its reassembled question
// list, as returned by create, fetch and update.
type AssessmentWithQuestions struct {
	Assessment
	Questions []Question `json:"questions"`
}

// AssessmentPage is one page of a header scan.
type AssessmentPage struct {
	Items     []Assessment `json:"items"`
	NextToken string       `json:"nextToken,omitempty"`
	HasMore   bool         `json:"hasMore"`
}

// ListFilters is the scan-time predicate applied to list results. Zero-value
// fields match everything. Filtering cost is proportional to table size, not
// result size, since there are no secondary indexes.
type ListFilters struct {
	Category    string
	Difficulty  Difficulty
	Status      AssessmentStatus
	Scope       string
	IsPublished *bool
}

// Match reports whether a header passes the filter predicate.
func (f ListFilters) Match(a *Assessment) bool {
	if f.Category != "" && a.Category != f.Category {
		return false
	}
	if f.Difficulty != "" && a.Difficulty != f.Difficulty {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Scope != "" && a.Scope != f.Scope {
		return false
	}
	if f.IsPublished != nil && a.IsPublished != *f.IsPublished {
		return false
	}
	return true
}

// CreateAssessmentRequest is the payload for creating a new assessment.
type CreateAssessmentRequest struct {
	Title              string        `json:"title" binding:"required,min=3,max=255"`
	Description        string        `json:"description" binding:"omitempty,max=2000"`
	Category           string        `json:"category" binding:"omitempty,max=100"`
	Difficulty         string        `json:"difficulty" binding:"omitempty,oneof=EASY MEDIUM HARD"`
	Duration           int           `json:"duration" binding:"omitempty,min=1,max=480"`
	MaxAttempts        int           `json:"maxAttempts" binding:"omitempty,min=1,max=10"`
	PassingScore       int           `json:"passingScore" binding:"omitempty,min=0,max=100"`
	RandomizeQuestions bool          `json:"randomizeQuestions"`
	TotalQuestions     int           `json:"totalQuestions" binding:"omitempty,min=0"`
	Scheduling         Scheduling    `json:"scheduling"`
	TargetDepartments  []string      `json:"targetDepartments"`
	TargetYears        []string      `json:"targetYears"`
	Status             string        `json:"status" binding:"omitempty,oneof=ACTIVE INACTIVE ARCHIVED"`
	IsPublished        bool          `json:"isPublished"`
	CreatedByName      string        `json:"createdByName" binding:"omitempty,max=255"`
	Questions          []RawQuestion `json:"questions"`
}

// UpdateAssessmentRequest is a partial field set merged into the stored
// header at the JSON level. Immutable keys and "questions" are filtered out
// before the merge; "questions" triggers a destructive batch replacement.
type UpdateAssessmentRequest map[string]json.RawMessage

// VerifyResult reports whether a header's entities summary matches the
// batch records actually present in the store.
type VerifyResult struct {
	AssessmentID string   `json:"assessmentId"`
	Consistent   bool     `json:"consistent"`
	Stored       []Entity `json:"stored"`
	Recomputed   []Entity `json:"recomputed"`
	BatchRecords int      `json:"batchRecords"`
}
