// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
	"github.com/ridgelineai/ridgeline/services/orchestrator/pipeline"
	"github.com/ridgelineai/ridgeline/services/orchestrator/routes"
	"github.com/ridgelineai/ridgeline/services/orchestrator/store"
	"github.com/ridgelineai/ridgeline/services/orchestrator/viscache"
	"github.com/ridgelineai/ridgeline/services/tools"
)

// =============================================================================
// Pipeline Fakes
// =============================================================================

type stubInvoker[I, O any] struct {
	name string
	out  O
}

func (s *stubInvoker[I, O]) Name() string { return s.name }

func (s *stubInvoker[I, O]) Invoke(ctx context.Context, in I, hint string) (string, error) {
	return "{}", nil
}

func (s *stubInvoker[I, O]) Decode(raw string) (O, error) { return s.out, nil }

type stubVision struct{}

func (stubVision) Framework() string { return "single_model" }

func (stubVision) Analyze(ctx context.Context, budget *pipeline.Budget, in pipeline.VisionInput) (datatypes.VisionEvidence, error) {
	if !budget.Reserve(1) {
		return datatypes.VisionEvidence{}, pipeline.NewStageError("vision", pipeline.KindBudgetExhausted, pipeline.ErrBudgetExhausted)
	}
	return datatypes.VisionEvidence{PhotoID: in.Photo.PhotoID}, nil
}

type stubPDFExtractor struct{}

func (stubPDFExtractor) ExtractText(ctx context.Context, pdfBytes []byte) (string, error) {
	return "RCV $18,000.00", nil
}

type stubRenderer struct {
	pdf []byte
	err error
}

func (s *stubRenderer) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	return s.pdf, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, apiKey string, renderer *stubRenderer) (*gin.Engine, *store.JobStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sched, err := pipeline.NewScheduler(pipeline.SchedulerConfig{
		Agents: pipeline.Agents{
			Estimate:   &stubInvoker[pipeline.EstimateInput, *datatypes.EstimateInterpretation]{name: "estimate_agent", out: &datatypes.EstimateInterpretation{}},
			Gap:        &stubInvoker[pipeline.GapInput, *datatypes.GapAnalysis]{name: "gap_agent", out: &datatypes.GapAnalysis{}},
			Strategist: &stubInvoker[pipeline.StrategistInput, *datatypes.SupplementStrategy]{name: "supplement_agent", out: &datatypes.SupplementStrategy{}},
			Review: &stubInvoker[pipeline.ReviewInput, *datatypes.ReviewResult]{name: "review_agent", out: &datatypes.ReviewResult{
				Approved:          true,
				OverallAssessment: "fine",
				ReadyForDelivery:  true,
			}},
			Report: &stubInvoker[pipeline.ReportInput, string]{name: "report_agent", out: "<html></html>"},
		},
		Vision:    stubVision{},
		Cache:     viscache.NewMemoryCache(),
		Extractor: stubPDFExtractor{},
		Limits:    pipeline.DefaultLimits(),
		Logger:    discardLogger(),
	})
	require.NoError(t, err)

	jobs := store.NewJobStore()
	manager := pipeline.NewManager(sched, jobs, pipeline.DefaultLimits(), discardLogger())

	router := gin.New()
	var r tools.Renderer
	if renderer != nil {
		r = renderer
	}
	routes.SetupRoutes(router, jobs, manager, r, apiKey)
	return router, jobs
}

// =============================================================================
// Multipart Helpers
// =============================================================================

type submission struct {
	estimatePDF []byte
	photos      int
	metadata    string
	costs       string
	extras      map[string]string
}

func validSubmission() submission {
	return submission{
		estimatePDF: []byte("%PDF-1.7 estimate"),
		photos:      2,
		metadata: `{"carrier":"Acme Mutual","claim_number":"CLM-1",` +
			`"insured_name":"Pat Homeowner","property_address":"100 Shingle Ln"}`,
		costs: `{"materials_cost":9000,"labor_cost":6000,"other_costs":500,"currency":"USD"}`,
	}
}

func (s submission) encode(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	if s.estimatePDF != nil {
		fw, err := w.CreateFormFile("estimate_pdf", "estimate.pdf")
		require.NoError(t, err)
		fw.Write(s.estimatePDF)
	}
	for i := 0; i < s.photos; i++ {
		fw, err := w.CreateFormFile("photos", fmt.Sprintf("roof_%d.jpg", i))
		require.NoError(t, err)
		fw.Write([]byte(fmt.Sprintf("jpeg-bytes-%d", i)))
	}
	if s.metadata != "" {
		w.WriteField("metadata", s.metadata)
	}
	if s.costs != "" {
		w.WriteField("costs", s.costs)
	}
	for k, v := range s.extras {
		w.WriteField(k, v)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func postJob(t *testing.T, router *gin.Engine, s submission) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := s.encode(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// =============================================================================
// Create
// =============================================================================

func TestCreateJobAccepted(t *testing.T) {
	router, jobs := newTestRouter(t, "", nil)

	rec := postJob(t, router, validSubmission())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "queued", body["status"])
	jobID, ok := body["job_id"].(string)
	require.True(t, ok)

	stored, err := jobs.Get(jobID)
	require.NoError(t, err)
	assert.Len(t, stored.Job.Photos, 2)
	assert.Equal(t, "Acme Mutual", stored.Job.Metadata.Carrier)
	assert.Equal(t, "image/jpeg", stored.Job.Photos[0].MIMEType)
}

func TestCreateJobPhotoDetails(t *testing.T) {
	router, jobs := newTestRouter(t, "", nil)

	s := validSubmission()
	s.extras = map[string]string{
		"photo_details":   `[{"filename":"roof_0.jpg","view_type":"damage_detail","notes":"hail strikes"}]`,
		"generate_report": "true",
	}
	rec := postJob(t, router, s)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	stored, err := jobs.Get(body["job_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "damage_detail", stored.Job.Photos[0].ViewType)
	assert.Equal(t, "hail strikes", stored.Job.Photos[0].Notes)
	assert.Empty(t, stored.Job.Photos[1].ViewType)
	assert.True(t, stored.Job.GenerateReport)
}

func TestCreateJobValidationErrors(t *testing.T) {
	router, _ := newTestRouter(t, "", nil)

	tests := []struct {
		name   string
		mutate func(*submission)
	}{
		{"missing estimate pdf", func(s *submission) { s.estimatePDF = nil }},
		{"missing photos", func(s *submission) { s.photos = 0 }},
		{"too many photos", func(s *submission) { s.photos = datatypes.MaxPhotosPerJob + 1 }},
		{"missing metadata", func(s *submission) { s.metadata = "" }},
		{"malformed metadata", func(s *submission) { s.metadata = "{not json" }},
		{"missing costs", func(s *submission) { s.costs = "" }},
		{"invalid currency", func(s *submission) { s.costs = `{"currency":"DOLLARS"}` }},
		{"incomplete metadata", func(s *submission) { s.metadata = `{"carrier":"Acme Mutual"}` }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSubmission()
			tt.mutate(&s)
			rec := postJob(t, router, s)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, decodeBody(t, rec), "error")
		})
	}
}

// =============================================================================
// Get / List
// =============================================================================

func seedRecord(t *testing.T, jobs *store.JobStore, id string, status datatypes.JobStatus, out *pipeline.Outcome) {
	t.Helper()
	job := &datatypes.Job{
		JobID: id,
		Metadata: datatypes.JobMetadata{
			Carrier:         "Acme Mutual",
			ClaimNumber:     "CLM-1",
			InsuredName:     "Pat Homeowner",
			PropertyAddress: "100 Shingle Ln",
		},
	}
	_, err := jobs.Create(job)
	require.NoError(t, err)
	if out != nil {
		out.JobID = id
		out.Status = status
		jobs.SetOutcome(id, out)
	}
}

func TestGetJobNotFound(t *testing.T) {
	router, _ := newTestRouter(t, "", nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job_missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobIncludes(t *testing.T) {
	router, jobs := newTestRouter(t, "", nil)
	seedRecord(t, jobs, "job_1", datatypes.StatusEscalated, &pipeline.Outcome{
		Gaps:     &datatypes.GapAnalysis{CoverageSummary: datatypes.CoverageSummary{Narrative: "n"}},
		Strategy: &datatypes.SupplementStrategy{},
		Review:   &datatypes.ReviewResult{OverallAssessment: "held"},
		Flags:    []datatypes.HumanFlag{{FlagID: "f1", Severity: "critical", Reason: "r"}},
		LLMCalls: 7,
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job_1?include=gaps,review", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "escalated", body["status"])
	assert.Equal(t, float64(7), body["llm_calls"])
	assert.Contains(t, body, "gaps")
	assert.Contains(t, body, "review")
	assert.NotContains(t, body, "strategy")
	assert.NotContains(t, body, "evidence")

	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/job_1?include=all", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	body = decodeBody(t, rec)
	for _, key := range []string{"evidence", "estimate", "gaps", "strategy", "review", "flags"} {
		assert.Contains(t, body, key)
	}
}

func TestListJobs(t *testing.T) {
	router, jobs := newTestRouter(t, "", nil)
	seedRecord(t, jobs, "job_1", "", nil)
	seedRecord(t, jobs, "job_2", datatypes.StatusEscalated, &pipeline.Outcome{})

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["total"])

	req = httptest.NewRequest(http.MethodGet, "/v1/jobs?status=escalated", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	body = decodeBody(t, rec)
	assert.Equal(t, float64(1), body["total"])
	summaries := body["jobs"].([]any)
	require.Len(t, summaries, 1)
	assert.Equal(t, "job_2", summaries[0].(map[string]any)["job_id"])
}

// =============================================================================
// Report
// =============================================================================

func TestGetReport(t *testing.T) {
	renderer := &stubRenderer{pdf: []byte("%PDF-1.7 rendered")}
	router, jobs := newTestRouter(t, "", renderer)
	seedRecord(t, jobs, "job_1", datatypes.StatusCompleted, &pipeline.Outcome{
		Report: &datatypes.ReportArtifact{HTML: "<html><body>report</body></html>"},
	})
	seedRecord(t, jobs, "job_2", datatypes.StatusCompleted, &pipeline.Outcome{})

	// HTML is the default format.
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job_1/report", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "report")

	// PDF renders on demand when none was stored.
	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/job_1/report?format=pdf", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.7 rendered", rec.Body.String())

	// Unknown format.
	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/job_1/report?format=docx", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No report generated for this job.
	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/job_2/report", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReportPDFWithoutRenderer(t *testing.T) {
	router, jobs := newTestRouter(t, "", nil)
	seedRecord(t, jobs, "job_1", datatypes.StatusCompleted, &pipeline.Outcome{
		Report: &datatypes.ReportArtifact{HTML: "<html></html>"},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job_1/report?format=pdf", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
}

// =============================================================================
// Decide / Cancel
// =============================================================================

func TestDecideJob(t *testing.T) {
	router, jobs := newTestRouter(t, "", nil)
	seedRecord(t, jobs, "job_1", datatypes.StatusEscalated, &pipeline.Outcome{})
	seedRecord(t, jobs, "job_2", datatypes.StatusEscalated, &pipeline.Outcome{})
	seedRecord(t, jobs, "job_3", "", nil) // still queued

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/job_1/approve",
		bytes.NewBufferString(`{"note":"margins check out"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", decodeBody(t, rec)["status"])

	stored, _ := jobs.Get("job_1")
	assert.Equal(t, "margins check out", stored.Decision)

	// Reject works without a body.
	req = httptest.NewRequest(http.MethodPost, "/v1/jobs/job_2/reject", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", decodeBody(t, rec)["status"])

	// Non-escalated jobs conflict.
	req = httptest.NewRequest(http.MethodPost, "/v1/jobs/job_3/approve", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/jobs/job_missing/approve", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJob(t *testing.T) {
	router, jobs := newTestRouter(t, "", nil)
	seedRecord(t, jobs, "job_1", "", nil) // queued
	seedRecord(t, jobs, "job_2", datatypes.StatusCompleted, &pipeline.Outcome{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/jobs/job_1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "cancelled", decodeBody(t, rec)["status"])

	// Terminal jobs cannot be cancelled.
	req = httptest.NewRequest(http.MethodDelete, "/v1/jobs/job_2", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/v1/jobs/job_missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Health / Auth
// =============================================================================

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t, "", nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestAPIKeyProtectsV1(t *testing.T) {
	router, _ := newTestRouter(t, "secret-key", nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
