// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
	"github.com/ridgelineai/ridgeline/services/orchestrator/pipeline"
	"github.com/ridgelineai/ridgeline/services/orchestrator/store"
	"github.com/ridgelineai/ridgeline/services/tools"
)

// maxUploadBytes bounds one job submission: 20 photos plus a PDF.
const maxUploadBytes = 256 << 20

// PhotoDetail is optional per-photo metadata submitted alongside the
// files, matched to uploads by filename.
type PhotoDetail struct {
	Filename string `json:"filename"`
	ViewType string `json:"view_type"`
	Notes    string `json:"notes"`
}

// CreateJob accepts a multipart job submission and starts the pipeline.
//
// Form fields:
//
//	estimate_pdf     the carrier estimate document (file, required)
//	photos           1..20 job-site photos (files, required)
//	metadata         JobMetadata JSON (required)
//	costs            Costs JSON (required)
//	business_targets BusinessTargets JSON (optional)
//	photo_details    []PhotoDetail JSON (optional)
//	callback_url     terminal-status webhook (optional)
//	generate_report  "true" to produce the delivery report (optional)
//
// Responds 202 with the job ID; processing is asynchronous.
func CreateJob(jobs *store.JobStore, manager *pipeline.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form: " + err.Error()})
			return
		}

		job, err := jobFromForm(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		job.JobID = store.NewJobID()

		if err := job.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, err := jobs.Create(job); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if _, err := manager.Submit(job); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		slog.Info("Job accepted",
			"job_id", job.JobID,
			"photos", len(job.Photos),
			"carrier", job.Metadata.Carrier)
		c.JSON(http.StatusAccepted, gin.H{
			"job_id": job.JobID,
			"status": string(datatypes.StatusQueued),
		})
	}
}

// GetJob returns the job record. The include query parameter selects
// pipeline outputs to embed: evidence, estimate, gaps, strategy,
// review, flags, or all.
func GetJob(jobs *store.JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := jobs.Get(c.Param("jobId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}

		body := gin.H{
			"job_id":     rec.Job.JobID,
			"status":     string(rec.Status),
			"stage":      rec.Stage,
			"metadata":   rec.Job.Metadata,
			"created_at": rec.CreatedAt,
			"updated_at": rec.UpdatedAt,
		}
		if rec.Error != "" {
			body["error"] = rec.Error
		}
		if rec.Decision != "" {
			body["decision"] = rec.Decision
		}
		if rec.Outcome != nil {
			body["llm_calls"] = rec.Outcome.LLMCalls
			body["review_cycles"] = rec.Outcome.ReviewCycles
			body["has_report"] = rec.Outcome.Report != nil
			addIncludes(body, rec.Outcome, c.Query("include"))
		}
		c.JSON(http.StatusOK, body)
	}
}

// ListJobs returns paginated job summaries, filterable by status and
// carrier.
func ListJobs(jobs *store.JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		records, total := jobs.List(store.ListFilter{
			Status:  datatypes.JobStatus(c.Query("status")),
			Carrier: c.Query("carrier"),
			Limit:   limit,
			Offset:  offset,
		})

		summaries := make([]gin.H, 0, len(records))
		for _, rec := range records {
			summaries = append(summaries, gin.H{
				"job_id":       rec.Job.JobID,
				"status":       string(rec.Status),
				"carrier":      rec.Job.Metadata.Carrier,
				"claim_number": rec.Job.Metadata.ClaimNumber,
				"created_at":   rec.CreatedAt,
				"updated_at":   rec.UpdatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"jobs": summaries, "total": total})
	}
}

// GetReport serves the generated report. format=html (default) returns
// the document inline; format=pdf returns the rendered PDF, rendering
// on demand when a renderer is configured and no PDF was stored.
func GetReport(jobs *store.JobStore, renderer tools.Renderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := jobs.Get(c.Param("jobId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if rec.Outcome == nil || rec.Outcome.Report == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no report available for this job"})
			return
		}
		report := rec.Outcome.Report

		switch c.DefaultQuery("format", "html") {
		case "html":
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(report.HTML))
		case "pdf":
			pdf := report.PDF
			if pdf == nil && renderer != nil {
				pdf, err = renderer.RenderPDF(c.Request.Context(), report.HTML)
				if err != nil {
					slog.Error("On-demand PDF rendering failed", "job_id", rec.Job.JobID, "error", err)
					c.JSON(http.StatusBadGateway, gin.H{"error": "pdf rendering failed"})
					return
				}
			}
			if pdf == nil {
				c.JSON(http.StatusNotAcceptable, gin.H{"error": "pdf rendering is not configured"})
				return
			}
			c.Header("Content-Disposition", `attachment; filename="supplement_`+rec.Job.JobID+`.pdf"`)
			c.Data(http.StatusOK, "application/pdf", pdf)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "format must be html or pdf"})
		}
	}
}

type decisionRequest struct {
	Note string `json:"note"`
}

// DecideJob records the human approve/reject decision on an escalated
// job. approve selects which transition to apply.
func DecideJob(jobs *store.JobStore, approve bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req decisionRequest
		// The note is optional; an empty body is a bare decision.
		_ = c.ShouldBindJSON(&req)

		rec, err := jobs.Decide(c.Param("jobId"), approve, req.Note)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, store.ErrNotFound):
				status = http.StatusNotFound
			case errors.Is(err, store.ErrInvalidTransition):
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"job_id": rec.Job.JobID,
			"status": string(rec.Status),
		})
	}
}

// CancelJob flags a running job for cancellation. The pipeline stops at
// its next stage boundary; terminal jobs respond 409.
func CancelJob(jobs *store.JobStore, manager *pipeline.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		if err := jobs.SetCancelled(jobID); err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, store.ErrNotFound):
				status = http.StatusNotFound
			case errors.Is(err, store.ErrInvalidTransition):
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		manager.Cancel(jobID)
		slog.Info("Job cancellation requested", "job_id", jobID)
		c.JSON(http.StatusAccepted, gin.H{
			"job_id": jobID,
			"status": string(datatypes.StatusCancelled),
		})
	}
}

// =============================================================================
// Form Parsing
// =============================================================================

func jobFromForm(form *multipart.Form) (*datatypes.Job, error) {
	job := &datatypes.Job{}

	estimateFiles := form.File["estimate_pdf"]
	if len(estimateFiles) != 1 {
		return nil, errors.New("exactly one estimate_pdf file is required")
	}
	pdfBytes, err := readUpload(estimateFiles[0])
	if err != nil {
		return nil, err
	}
	job.InsuranceEstimate = pdfBytes

	photoFiles := form.File["photos"]
	if len(photoFiles) == 0 {
		return nil, errors.New("at least one photo is required")
	}
	if len(photoFiles) > datatypes.MaxPhotosPerJob {
		return nil, errors.New("at most " + strconv.Itoa(datatypes.MaxPhotosPerJob) + " photos per job")
	}

	details := make(map[string]PhotoDetail)
	if raw := formValue(form, "photo_details"); raw != "" {
		var list []PhotoDetail
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, errors.New("photo_details is not valid JSON: " + err.Error())
		}
		for _, d := range list {
			details[d.Filename] = d
		}
	}

	job.Photos = make([]datatypes.Photo, 0, len(photoFiles))
	for _, fh := range photoFiles {
		data, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		photo := datatypes.Photo{
			PhotoID:  "photo_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
			Data:     data,
			Filename: fh.Filename,
			MIMEType: photoMIME(fh, data),
		}
		if d, ok := details[fh.Filename]; ok {
			photo.ViewType = d.ViewType
			photo.Notes = d.Notes
		}
		job.Photos = append(job.Photos, photo)
	}

	if raw := formValue(form, "metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Metadata); err != nil {
			return nil, errors.New("metadata is not valid JSON: " + err.Error())
		}
	} else {
		return nil, errors.New("metadata form field is required")
	}
	if raw := formValue(form, "costs"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Costs); err != nil {
			return nil, errors.New("costs is not valid JSON: " + err.Error())
		}
	} else {
		return nil, errors.New("costs form field is required")
	}
	if raw := formValue(form, "business_targets"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.BusinessTargets); err != nil {
			return nil, errors.New("business_targets is not valid JSON: " + err.Error())
		}
	}

	job.CallbackURL = formValue(form, "callback_url")
	job.GenerateReport = strings.EqualFold(formValue(form, "generate_report"), "true")
	return job, nil
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.New("open upload " + fh.Filename + ": " + err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.New("read upload " + fh.Filename + ": " + err.Error())
	}
	if len(data) == 0 {
		return nil, errors.New("upload " + fh.Filename + " is empty")
	}
	return data, nil
}

// photoMIME prefers the declared content type, then the filename
// extension, then content sniffing.
func photoMIME(fh *multipart.FileHeader, data []byte) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	switch strings.ToLower(filepath.Ext(fh.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return http.DetectContentType(data)
	}
}

// addIncludes embeds requested pipeline outputs in the response body.
func addIncludes(body gin.H, out *pipeline.Outcome, include string) {
	if include == "" {
		return
	}
	wants := make(map[string]bool)
	for _, part := range strings.Split(include, ",") {
		wants[strings.TrimSpace(part)] = true
	}
	all := wants["all"]
	if all || wants["evidence"] {
		body["evidence"] = out.Evidence
	}
	if all || wants["estimate"] {
		body["estimate"] = out.Estimate
	}
	if all || wants["gaps"] {
		body["gaps"] = out.Gaps
	}
	if all || wants["strategy"] {
		body["strategy"] = out.Strategy
	}
	if all || wants["review"] {
		body["review"] = out.Review
	}
	if all || wants["flags"] {
		body["flags"] = out.Flags
	}
}
