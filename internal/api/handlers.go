package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
	"github.com/fpang/aop-fashion-mockup/internal/export"
	"github.com/fpang/aop-fashion-mockup/internal/garment"
	"github.com/fpang/aop-fashion-mockup/internal/imageutil"
	"github.com/fpang/aop-fashion-mockup/internal/s3util"
	"github.com/fpang/aop-fashion-mockup/internal/store"
	"github.com/fpang/aop-fashion-mockup/internal/studio"
)

// createMockupRequest carries images as data URLs.
type createMockupRequest struct {
	Pattern     string `json:"pattern"`
	Person      string `json:"person,omitempty"`
	Garment     string `json:"garment"`
	Description string `json:"description,omitempty"`
}

type mockupLinks struct {
	Flat      string `json:"flat"`
	Worn      string `json:"worn"`
	Thumbnail string `json:"thumbnail"`
}

// mockupResponse mirrors studio.MockupResult. Image data URLs are included
// for single results and left out of listings.
type mockupResponse struct {
	ID            string      `json:"id"`
	GarmentType   string      `json:"garmentType"`
	SubjectMode   string      `json:"subjectMode"`
	Style         string      `json:"style,omitempty"`
	Timestamp     int64       `json:"timestamp"`
	FlatImageURL  string      `json:"flatImageUrl,omitempty"`
	ModelImageURL string      `json:"modelImageUrl,omitempty"`
	PatternURL    string      `json:"patternUrl,omitempty"`
	Links         mockupLinks `json:"links"`
}

func toResponse(r studio.MockupResult, withImages bool) mockupResponse {
	resp := mockupResponse{
		ID:          r.ID,
		GarmentType: r.Garment.String(),
		SubjectMode: r.SubjectMode,
		Style:       r.Style,
		Timestamp:   r.CreatedAt.UnixMilli(),
		Links: mockupLinks{
			Flat:      "/api/mockups/" + r.ID + "/flat.png",
			Worn:      "/api/mockups/" + r.ID + "/worn.png",
			Thumbnail: "/api/mockups/" + r.ID + "/thumbnail",
		},
	}
	if withImages {
		resp.FlatImageURL = r.Flat.String()
		resp.ModelImageURL = r.Worn.String()
		resp.PatternURL = r.Pattern.String()
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.cfg.Version,
	})
}

func (s *Server) handleGarments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"garments": garment.All(),
		"default":  garment.Default,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.cfg.Studio.State())
}

func (s *Server) handleCreateMockup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)

	var req createMockupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in, err := parseInput(req)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.cfg.Studio.Generate(r.Context(), in)
	if err != nil {
		var genErr *studio.GenerationError
		switch {
		case errors.Is(err, studio.ErrPatternRequired), errors.Is(err, garment.ErrUnknown), errors.Is(err, imageutil.ErrTooLarge):
			httpError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, studio.ErrGenerationInFlight):
			httpError(w, http.StatusConflict, err.Error())
		case errors.As(err, &genErr):
			httpError(w, http.StatusBadGateway, genErr.UserMessage())
		default:
			log.Error().Err(err).Msg("Unexpected generation error")
			httpError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	respondJSON(w, http.StatusCreated, toResponse(*result, true))
}

func parseInput(req createMockupRequest) (studio.Input, error) {
	if strings.TrimSpace(req.Pattern) == "" {
		return studio.Input{}, studio.ErrPatternRequired
	}
	pattern, err := dataurl.Parse(req.Pattern)
	if err != nil {
		return studio.Input{}, errors.New("pattern: " + err.Error())
	}

	var person *dataurl.Image
	if strings.TrimSpace(req.Person) != "" {
		person, err = dataurl.Parse(req.Person)
		if err != nil {
			return studio.Input{}, errors.New("person: " + err.Error())
		}
	}

	g, err := garment.Parse(req.Garment)
	if err != nil {
		return studio.Input{}, err
	}

	return studio.Input{
		Pattern:     pattern,
		Person:      person,
		Garment:     g,
		Description: strings.TrimSpace(req.Description),
	}, nil
}

func (s *Server) handleListMockups(w http.ResponseWriter, r *http.Request) {
	history := s.cfg.Studio.History()
	out := make([]mockupResponse, 0, len(history))
	for _, m := range history {
		out = append(out, toResponse(m, false))
	}
	respondJSON(w, http.StatusOK, map[string]any{"mockups": out})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (studio.MockupResult, bool) {
	m, err := s.cfg.Studio.Get(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return studio.MockupResult{}, false
	}
	return m, true
}

func (s *Server) handleGetMockup(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toResponse(m, true))
}

func (s *Server) handleMockupImage(which string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := s.lookup(w, r)
		if !ok {
			return
		}
		img, name := m.Flat, export.FlatFilename(m.ID, m.Flat)
		if which == "worn" {
			img, name = m.Worn, export.WornFilename(m.ID, m.Worn)
		}
		respondBytes(w, img.MIMEType, name, img.Data)
	}
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	thumb, err := imageutil.Thumbnail(m.Worn, DefaultThumbnailDimension)
	if err != nil {
		log.Error().Err(err).Str("mockupId", m.ID).Msg("Thumbnail generation failed")
		httpError(w, http.StatusInternalServerError, "thumbnail generation failed")
		return
	}
	respondBytes(w, "image/jpeg", "", thumb)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	history := s.cfg.Studio.History()
	if len(history) == 0 {
		httpError(w, http.StatusNotFound, "no mockups to export")
		return
	}

	// Buffer so a failure can still become an error response.
	var buf bytes.Buffer
	if err := export.WriteZip(&buf, history); err != nil {
		log.Error().Err(err).Msg("Export failed")
		httpError(w, http.StatusInternalServerError, "export failed")
		return
	}
	respondBytes(w, "application/zip", "aop-mockups.zip", buf.Bytes())
}

// archiveResponse is one archived record plus presigned image URLs when the
// bucket is reachable.
type archiveResponse struct {
	*store.Record
	FlatURL string `json:"flatUrl,omitempty"`
	WornURL string `json:"wornUrl,omitempty"`
}

func (s *Server) archiveEntry(r *http.Request, rec *store.Record) archiveResponse {
	entry := archiveResponse{Record: rec}
	if s.cfg.Presign == nil || s.cfg.Bucket == "" {
		return entry
	}
	for _, p := range []struct {
		key string
		dst *string
	}{
		{rec.FlatKey, &entry.FlatURL},
		{rec.WornKey, &entry.WornURL},
	} {
		if p.key == "" {
			continue
		}
		url, err := s3util.GeneratePresignedURL(r.Context(), s.cfg.Presign, s.cfg.Bucket, p.key, s3util.DefaultPresignExpiry)
		if err != nil {
			log.Warn().Err(err).Str("key", p.key).Msg("Failed to presign archived image")
			continue
		}
		*p.dst = url
	}
	return entry
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Records == nil {
		httpError(w, http.StatusNotFound, "archive not configured")
		return
	}
	records, err := s.cfg.Records.ListRecords(r.Context(), 50)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list archive")
		httpError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}
	out := make([]archiveResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, s.archiveEntry(r, rec))
	}
	respondJSON(w, http.StatusOK, map[string]any{"mockups": out})
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Records == nil {
		httpError(w, http.StatusNotFound, "archive not configured")
		return
	}
	rec, err := s.cfg.Records.GetRecord(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read archive record")
		httpError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	if rec == nil {
		httpError(w, http.StatusNotFound, studio.ErrNotFound.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.archiveEntry(r, rec))
}
