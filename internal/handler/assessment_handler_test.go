package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/placipy/assessment-backend/internal/middleware"
	"github.com/placipy/assessment-backend/internal/repository"
	"github.com/placipy/assessment-backend/internal/response"
	"github.com/placipy/assessment-backend/internal/service"
	"github.com/placipy/assessment-backend/internal/validator"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// testIdentity injects fixed claims, standing in for the JWT middleware.
func testIdentity(email string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{Email: email, Name: "Alice"})
		c.Next()
	}
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	headers := repository.NewMemoryRecordStore()
	batches := repository.NewMemoryRecordStore()
	svc := service.NewAssessmentService(headers, batches, nil, nil, "placipy.app", zerolog.Nop())
	h := NewAssessmentHandler(svc)

	r := gin.New()
	r.Use(response.RequestIDMiddleware(), testIdentity("alice@acme.edu"))

	r.POST("/api/v1/assessments", h.CreateAssessment)
	r.GET("/api/v1/assessments", h.ListAssessments)
	r.GET("/api/v1/assessments/:assessment_id", h.GetAssessment)
	r.PATCH("/api/v1/assessments/:assessment_id", h.UpdateAssessment)
	r.DELETE("/api/v1/assessments/:assessment_id", h.DeleteAssessment)
	r.GET("/api/v1/assessments/:assessment_id/verify", h.VerifyAssessment)
	r.POST("/api/v1/assessments/:assessment_id/repair", h.RepairAssessment)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("%s %s: undecodable envelope: %v\n%s", method, path, err, w.Body.String())
	}

	data := map[string]json.RawMessage{}
	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			t.Fatalf("%s %s: undecodable data: %v", method, path, err)
		}
	}
	return w, data
}

func createBody(questions int) string {
	var sb strings.Builder
	sb.WriteString(`{"title":"Placement Screening","category":"Information Technology","questions":[`)
	for i := 0; i < questions; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"text":"q %d","options":["a","b"],"correctAnswer":"a"}`, i)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

func TestCreateAssessmentEndpoint(t *testing.T) {
	r := setupTestRouter(t)

	w, data := doJSON(t, r, http.MethodPost, "/api/v1/assessments", createBody(3))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		AssessmentID string `json:"assessmentId"`
		Scope        string `json:"scope"`
		Questions    []struct {
			Kind string `json:"kind"`
		} `json:"questions"`
	}
	if err := json.Unmarshal(data["assessment"], &created); err != nil {
		t.Fatalf("decode assessment: %v", err)
	}
	if created.AssessmentID != "ASSESS_IT_001" {
		t.Fatalf("unexpected id %q", created.AssessmentID)
	}
	if created.Scope != "acme.edu" {
		t.Fatalf("unexpected scope %q", created.Scope)
	}
	if len(created.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(created.Questions))
	}

	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestCreateAssessmentValidation(t *testing.T) {
	r := setupTestRouter(t)

	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/assessments", `{"title":"ab"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short title, got %d", w.Code)
	}
}

func TestGetAssessmentEndpoint(t *testing.T) {
	r := setupTestRouter(t)
	doJSON(t, r, http.MethodPost, "/api/v1/assessments", createBody(2))

	w, data := doJSON(t, r, http.MethodGet, "/api/v1/assessments/ASSESS_IT_001", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if data["assessment"] == nil {
		t.Fatal("missing assessment in response")
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/assessments/ASSESS_IT_999", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for absent id, got %d", w.Code)
	}
}

func TestListAssessmentsEndpoint(t *testing.T) {
	r := setupTestRouter(t)
	doJSON(t, r, http.MethodPost, "/api/v1/assessments", createBody(2))
	doJSON(t, r, http.MethodPost, "/api/v1/assessments", createBody(2))

	w, data := doJSON(t, r, http.MethodGet, "/api/v1/assessments?limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data["assessments"], &items); err != nil {
		t.Fatalf("decode assessments: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 assessments, got %d", len(items))
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/assessments?next_token=bogus!!!", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad token, got %d", w.Code)
	}
}

func TestUpdateAssessmentEndpoint(t *testing.T) {
	r := setupTestRouter(t)
	doJSON(t, r, http.MethodPost, "/api/v1/assessments", createBody(2))

	w, data := doJSON(t, r, http.MethodPatch, "/api/v1/assessments/ASSESS_IT_001", `{"title":"Renamed"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var updated struct {
		Title     string `json:"title"`
		UpdatedBy string `json:"updatedBy"`
	}
	if err := json.Unmarshal(data["assessment"], &updated); err != nil {
		t.Fatalf("decode assessment: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Fatalf("title not updated: %q", updated.Title)
	}
	if updated.UpdatedBy != "alice@acme.edu" {
		t.Fatalf("updatedBy not stamped: %q", updated.UpdatedBy)
	}

	w, _ = doJSON(t, r, http.MethodPatch, "/api/v1/assessments/ASSESS_IT_001", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty update, got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodPatch, "/api/v1/assessments/ASSESS_IT_999", `{"title":"x"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for absent id, got %d", w.Code)
	}
}

func TestDeleteAssessmentEndpoint(t *testing.T) {
	r := setupTestRouter(t)
	doJSON(t, r, http.MethodPost, "/api/v1/assessments", createBody(2))

	w, _ := doJSON(t, r, http.MethodDelete, "/api/v1/assessments/ASSESS_IT_001", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/assessments/ASSESS_IT_001", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodDelete, "/api/v1/assessments/ASSESS_IT_001", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for double delete, got %d", w.Code)
	}
}

func TestVerifyAndRepairEndpoints(t *testing.T) {
	r := setupTestRouter(t)
	doJSON(t, r, http.MethodPost, "/api/v1/assessments", createBody(2))

	w, data := doJSON(t, r, http.MethodGet, "/api/v1/assessments/ASSESS_IT_001/verify", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var verification struct {
		Consistent bool `json:"consistent"`
	}
	if err := json.Unmarshal(data["verification"], &verification); err != nil {
		t.Fatalf("decode verification: %v", err)
	}
	if !verification.Consistent {
		t.Fatal("fresh assessment reported inconsistent")
	}

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/assessments/ASSESS_IT_001/repair", "")
	if w.Code != http.StatusOK {
		t.Fatalf("repair: expected 200, got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/assessments/ASSESS_IT_999/verify", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for absent id, got %d", w.Code)
	}
}
