package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/storeimport/internal/commit"
	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/export"
	"github.com/JonMunkholm/storeimport/internal/ingest"
	"github.com/JonMunkholm/storeimport/internal/pipeline"
	"github.com/JonMunkholm/storeimport/internal/store"
	webmw "github.com/JonMunkholm/storeimport/internal/web/middleware"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// multipart overhead allowed on top of the file size limit
	multipartSlack = 1 << 20
)

// ingestResponse is returned by both ingest endpoints.
type ingestResponse struct {
	Job        *core.ImportJob `json:"job"`
	Enrichment enrichSummary   `json:"enrichment"`
}

type enrichSummary struct {
	Attempted int `json:"attempted"`
	Enriched  int `json:"enriched"`
	Failed    int `json:"failed"`
}

func newIngestResponse(res *pipeline.IngestResult) ingestResponse {
	return ingestResponse{
		Job: res.Job,
		Enrichment: enrichSummary{
			Attempted: res.Enrichment.Attempted,
			Enriched:  res.Enrichment.Enriched,
			Failed:    res.Enrichment.Failed,
		},
	}
}

// handleUpload ingests a multipart file upload.
// Form fields: file (required), enrich ("true"/"false", optional).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartSlack)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			s.respondError(w, r, core.NewSourceError(core.FileTooLarge, fmt.Sprintf("exceeds %d byte limit", maxSize), err))
		case errors.Is(err, http.ErrMissingFile):
			s.badRequest(w, r, "no file provided")
		default:
			s.badRequest(w, r, "invalid multipart form: "+err.Error())
		}
		return
	}
	defer file.Close()

	data, err := ingest.ReadLimited(file, maxSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	enrich, err := s.enrichOption(r.FormValue("enrich"))
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}

	src := ingest.Source{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	res, err := s.service.Ingest(r.Context(), src, pipeline.IngestOptions{
		Enrich: enrich,
		Actor:  webmw.ActorFromContext(r.Context()),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newIngestResponse(res))
}

type ingestURLRequest struct {
	URL    string `json:"url"`
	Enrich *bool  `json:"enrich"`
}

// handleIngestURL ingests a shared spreadsheet link.
func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req ingestURLRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		s.badRequest(w, r, "invalid JSON body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		s.badRequest(w, r, "url is required")
		return
	}

	enrich := s.cfg.Import.EnrichOnIngest
	if req.Enrich != nil {
		enrich = *req.Enrich
	}

	res, err := s.service.Ingest(r.Context(), ingest.Source{URL: req.URL}, pipeline.IngestOptions{
		Enrich: enrich,
		Actor:  webmw.ActorFromContext(r.Context()),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newIngestResponse(res))
}

// enrichOption parses the enrich form value; empty means the configured default.
func (s *Server) enrichOption(v string) (bool, error) {
	if v == "" {
		return s.cfg.Import.EnrichOnIngest, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("enrich must be true or false, got %q", v)
	}
	return b, nil
}

type jobListResponse struct {
	Jobs   []core.ImportJob `json:"jobs"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit < 1 {
		s.badRequest(w, r, "limit must be a positive integer")
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.badRequest(w, r, "offset must be a non-negative integer")
		return
	}

	jobs, err := s.service.Jobs(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []core.ImportJob{}
	}
	writeJSON(w, http.StatusOK, jobListResponse{Jobs: jobs, Limit: limit, Offset: offset})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.Job(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type rowListResponse struct {
	JobID string           `json:"job_id"`
	Rows  []core.ImportRow `json:"rows"`
}

// handleListRows lists a job's rows, optionally filtered by
// ?status=error,warning.
func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	filter, err := parseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}

	// Distinguish an unknown job from a job with no matching rows
	if _, err := s.service.Job(r.Context(), jobID); err != nil {
		s.respondError(w, r, err)
		return
	}

	rows, err := s.service.Rows(r.Context(), jobID, filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if rows == nil {
		rows = []core.ImportRow{}
	}
	writeJSON(w, http.StatusOK, rowListResponse{JobID: jobID, Rows: rows})
}

var rowStatuses = []core.RowStatus{
	core.RowPending, core.RowValid, core.RowWarning,
	core.RowError, core.RowSkipped, core.RowCommitted,
}

func parseStatusFilter(v string) (store.RowFilter, error) {
	var filter store.RowFilter
	if strings.TrimSpace(v) == "" {
		return filter, nil
	}
	for _, part := range strings.Split(v, ",") {
		st := core.RowStatus(strings.ToLower(strings.TrimSpace(part)))
		if st == "" {
			continue
		}
		if !slices.Contains(rowStatuses, st) {
			return filter, fmt.Errorf("unknown row status %q", part)
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	return filter, nil
}

type commitRequest struct {
	SkipErrors *bool `json:"skip_errors"`
}

// handleCommit commits a job. The body is optional; skip_errors defaults
// to true.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.badRequest(w, r, "invalid JSON body")
		return
	}

	opts := commit.DefaultOptions(webmw.ActorFromContext(r.Context()))
	if req.SkipErrors != nil {
		opts.SkipErrors = *req.SkipErrors
	}

	summary, err := s.service.Commit(r.Context(), chi.URLParam(r, "jobID"), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleExport downloads a job as corrected, errors_report (alias
// errors_excel) or errors_json.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	art, err := s.service.Export(r.Context(), chi.URLParam(r, "jobID"), format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, art.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
