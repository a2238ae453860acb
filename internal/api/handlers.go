package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

const enqueueTimeout = 5 * time.Second

type createJobRequest struct {
	URL          string `json:"url"`
	Mode         string `json:"mode"`
	AutoGenerate *bool  `json:"auto_generate"`
	MaxPages     *int   `json:"max_pages"`
}

type updatePagesRequest struct {
	PageIDs  []string `json:"page_ids"`
	Included *bool    `json:"included"`
}

type generateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.newJob(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.repo.CreateJob(r.Context(), job); err != nil {
		s.writeRepoError(w, r, fmt.Errorf("create job: %w", err))
		return
	}
	if err := s.submit(r.Context(), job.ID, digest.EntrypointProcessJob); err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	created, err := s.repo.GetJob(r.Context(), job.ID)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	s.logger.Info("job submitted", zap.String("job_id", job.ID), zap.String("url", job.URL))
	writeJSON(w, http.StatusCreated, newJobView(created))
}

func (s *Server) newJob(req createJobRequest) (digest.Job, error) {
	site, err := validateSiteURL(req.URL)
	if err != nil {
		return digest.Job{}, err
	}
	mode := digest.Mode(strings.ToLower(strings.TrimSpace(req.Mode)))
	switch mode {
	case "":
		mode = digest.ModeAuto
	case digest.ModeAuto, digest.ModeScan:
	default:
		return digest.Job{}, fmt.Errorf("mode must be one of auto, scan")
	}
	autoGenerate := true
	if req.AutoGenerate != nil {
		autoGenerate = *req.AutoGenerate
	}
	maxPages := s.cfg.Crawler.MaxPages
	if req.MaxPages != nil {
		if *req.MaxPages <= 0 || (s.cfg.Crawler.MaxPages > 0 && *req.MaxPages > s.cfg.Crawler.MaxPages) {
			return digest.Job{}, fmt.Errorf("max_pages must be between 1 and %d", s.cfg.Crawler.MaxPages)
		}
		maxPages = *req.MaxPages
	}

	jobID, err := s.ids.NewID()
	if err != nil {
		return digest.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	return digest.Job{
		ID:           jobID,
		URL:          site,
		Status:       digest.JobStatusPending,
		Mode:         mode,
		AutoGenerate: autoGenerate,
		MaxPages:     maxPages,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func validateSiteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("url must be an absolute http(s) URL")
	}
	return u.String(), nil
}

func (s *Server) submit(ctx context.Context, jobID string, entrypoint digest.Entrypoint) error {
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if err := s.submitter.Submit(queueCtx, jobID, entrypoint); err != nil {
		return fmt.Errorf("enqueue %s: %w", entrypoint, err)
	}
	return nil
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.repo.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(job))
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, err := s.repo.GetJob(r.Context(), jobID); err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	pages, err := s.repo.ListPages(r.Context(), jobID)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageList(pages))
}

func (s *Server) updatePages(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	var req updatePagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Included == nil {
		writeError(w, http.StatusBadRequest, "included required")
		return
	}
	if _, err := s.repo.GetJob(r.Context(), jobID); err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	updated, err := s.repo.SetPagesIncluded(r.Context(), jobID, req.PageIDs, *req.Included)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) triggerGeneration(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.repo.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	if job.AutoGenerate {
		writeError(w, http.StatusBadRequest, "job already has auto_generate=true")
		return
	}
	if job.Status != digest.JobStatusCompleted {
		writeError(w, http.StatusConflict, "job not in completed state")
		return
	}
	included, err := s.repo.PagesForExtraction(r.Context(), jobID)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}

	// Flip the status before enqueueing so pollers see the transition.
	if err := s.repo.UpdateJob(r.Context(), jobID, digest.JobUpdate{
		Status:          digest.Ptr(digest.JobStatusSummarizing),
		ProgressPercent: digest.Ptr(50),
		ProgressMessage: digest.Ptr("Starting generation..."),
	}); err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	if err := s.submit(r.Context(), jobID, digest.EntrypointContinueGeneration); err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, generateResponse{
		Status:  "queued",
		Message: fmt.Sprintf("Generation started for %d pages", len(included)),
	})
}

func (s *Server) downloadLinkIndex(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, digest.ArtifactLinkIndex)
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, chi.URLParam(r, "file_type"))
}

func (s *Server) download(w http.ResponseWriter, r *http.Request, fileType string) {
	job, err := s.repo.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	key, ok := job.ResultFiles[fileType]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("file type '%s' not found", fileType))
		return
	}
	content, found, err := s.store.Read(r.Context(), key)
	if err != nil {
		s.writeRepoError(w, r, fmt.Errorf("read artifact: %w", err))
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	s.writeText(w, digest.ArtifactFilename(fileType), content)
}

// serveFile exposes stored artifacts by key, matching the local store's URL scheme.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	content, found, err := s.store.Read(r.Context(), key)
	if err != nil {
		s.logger.Warn("read artifact failed", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	name := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		name = key[i+1:]
	}
	s.writeText(w, name, content)
}

func (s *Server) writeText(w http.ResponseWriter, filename, content string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(content)); err != nil {
		s.logger.Error("write file failed", zap.String("filename", filename), zap.Error(err))
	}
}
