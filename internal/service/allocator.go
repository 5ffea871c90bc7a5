package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/placipy/assessment-backend/internal/repository"
)

// MaxIDAttempts bounds the identifier claim retry loop in the create path.
const MaxIDAttempts = 100

// GenericCategoryCode is used when no category is supplied.
const GenericCategoryCode = "GEN"

// categoryCodes maps known category names to their short codes. Unknown
// categories fall back to the first three letters, upper-cased.
var categoryCodes = map[string]string{
	"Computer Science":       "CSE",
	"Information Technology": "IT",
	"Electronics":            "ECE",
	"Mechanical":             "ME",
	"Civil":                  "CE",
}

// CategoryCode derives the identifier prefix code from a category name.
func CategoryCode(category string) string {
	if category == "" {
		return GenericCategoryCode
	}
	if code, ok := categoryCodes[category]; ok {
		return code
	}
	runes := []rune(category)
	if len(runes) < 3 {
		return strings.ToUpper(category)
	}
	return strings.ToUpper(string(runes[:3]))
}

// ScopeFromIdentity derives the tenant scope from the creator's contact
// address domain. Identities without a parseable domain fall back to the
// configured default scope.
func ScopeFromIdentity(identity, fallback string) string {
	at := strings.LastIndex(identity, "@")
	if at < 0 || at == len(identity)-1 {
		return fallback
	}
	return identity[at+1:]
}

// FormatAssessmentID builds an identifier like ASSESS_IT_001. The sequence
// is zero-padded to three digits and grows naturally past 999.
func FormatAssessmentID(code string, seq int) string {
	return fmt.Sprintf("ASSESS_%s_%03d", code, seq)
}

// nextSequence scans existing headers under the category-code prefix within
// the scope and returns max(numeric suffix)+1, starting at 1 when none
// exist. The result is a candidate only: concurrent creators may compute
// the same number, which the conditional header claim in the create path
// resolves.
func nextSequence(ctx context.Context, headers repository.RecordStore, code, scope string) (int, error) {
	prefix := repository.AssessmentKeyPrefix + "ASSESS_" + code + "_"
	records, err := headers.Scan(ctx, repository.ScanFilter{
		PKPrefix: prefix,
		SKEquals: repository.ScopeSK(scope),
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s assessments: %w", code, err)
	}

	max := 0
	for _, rec := range records {
		suffix := rec.PK[strings.LastIndex(rec.PK, "_")+1:]
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}
