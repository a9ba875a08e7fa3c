package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/KollinFreise/carbonAwareHome/internal/app"
	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
	"github.com/KollinFreise/carbonAwareHome/pkg"
)

const defaultSeriesSpan = 24 * time.Hour

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	writeJSON(w, http.StatusOK, s.service.SensorState(r.Context(), location))
}

// handleBestTime always answers 200 with a status field; only an undecodable
// body is rejected with 400.
func (s *Server) handleBestTime(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, app.ForecastResult{
			Status:   app.StatusInvalidDatetime,
			Source:   app.SourceRaw,
			Location: s.service.DefaultLocation(),
			Message:  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, s.service.BestTimeFromParams(r.Context(), params))
}

// handleBestTimeRaw is the deprecated alias of handleBestTime.
func (s *Server) handleBestTimeRaw(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn().
		Str("path", r.URL.Path).
		Msg("best-time-raw is deprecated, use /api/v1/best-time")
	w.Header().Set("Deprecation", "true")
	w.Header().Set("Link", `</api/v1/best-time>; rel="successor-version"`)
	s.handleBestTime(w, r)
}

func decodeParams(w http.ResponseWriter, r *http.Request) (app.BestTimeParams, error) {
	var params app.BestTimeParams
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&params); err != nil {
		if errors.Is(err, io.EOF) {
			return params, errors.New("request body is empty")
		}
		return params, fmt.Errorf("decode request body: %w", err)
	}
	return params, nil
}

type seriesResponse struct {
	Location     string                   `json:"location"`
	Unit         string                   `json:"unit"`
	Source       string                   `json:"source"`
	FetchedAt    *time.Time               `json:"fetched_at"`
	SeriesLength int                      `json:"series_length"`
	Points       []scheduling.MinutePoint `json:"points"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	location := strings.TrimSpace(query.Get("location"))
	if location == "" {
		location = s.service.DefaultLocation()
	}

	from := s.now().UTC().Truncate(time.Minute)
	if raw := query.Get("from"); raw != "" {
		parsed, err := s.service.ParseDateTime(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: app.StatusInvalidDatetime, Message: "from: " + err.Error()})
			return
		}
		from = parsed
	}
	to := from.Add(defaultSeriesSpan)
	if raw := query.Get("to"); raw != "" {
		parsed, err := s.service.ParseDateTime(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: app.StatusInvalidDatetime, Message: "to: " + err.Error()})
			return
		}
		to = parsed
	}

	points, snap, err := s.service.Series(r.Context(), location, from, to)
	if err != nil {
		status := app.StatusFromError(err)
		writeJSON(w, httpStatus(status), errorResponse{Status: status, Message: err.Error()})
		return
	}

	resp := seriesResponse{
		Location:     strings.ToLower(location),
		Unit:         pkg.IntensityUnit,
		Source:       app.SourceRaw,
		SeriesLength: len(snap.Samples),
		Points:       points,
	}
	if !snap.FetchedAt.IsZero() {
		fetchedAt := snap.FetchedAt.UTC()
		resp.FetchedAt = &fetchedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type locationHealth struct {
	Location         string     `json:"location"`
	SeriesLength     int        `json:"series_length"`
	FetchedAt        *time.Time `json:"fetched_at"`
	StalenessSeconds *int64     `json:"staleness_seconds"`
	Stale            bool       `json:"stale"`
	LastError        string     `json:"last_error,omitempty"`
}

type healthResponse struct {
	Status    string           `json:"status"`
	Locations []locationHealth `json:"locations"`
}

// handleHealth reports 503 while any configured location has no fresh series.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	resp := healthResponse{Status: "ok"}
	if s.cache != nil {
		for _, location := range s.cache.Locations() {
			snap := s.cache.Read(location)
			entry := locationHealth{
				Location:     location,
				SeriesLength: len(snap.Samples),
				Stale:        snap.Stale(now),
			}
			if !snap.FetchedAt.IsZero() {
				fetchedAt := snap.FetchedAt.UTC()
				staleness := int64(snap.Staleness(now).Seconds())
				entry.FetchedAt = &fetchedAt
				entry.StalenessSeconds = &staleness
			}
			if snap.LastError != nil {
				entry.LastError = snap.LastError.Error()
			}
			if entry.Stale || snap.Empty() {
				resp.Status = "degraded"
			}
			resp.Locations = append(resp.Locations, entry)
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
