package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ozinsight/ozcheck/internal/checker"
	"github.com/ozinsight/ozcheck/internal/zone"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type statusResponse struct {
	checker.Status
	Geocoders map[string]string `json:"geocoders,omitempty"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type tractResponse struct {
	GEOID string `json:"geoid"`
	zone.LookupRecord
}

const codeNotFound = "not_found"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Status: s.checker.Status()}
	if s.breakers != nil {
		states := s.breakers.States()
		if len(states) > 0 {
			resp.Geocoders = make(map[string]string, len(states))
			for name, st := range states {
				resp.Geocoders[name] = st.String()
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckCoordinates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	if err != nil {
		s.writeError(w, eris.Wrapf(checker.ErrInvalidCoordinates, "lat %q", q.Get("lat")))
		return
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lng")), 64)
	if err != nil {
		s.writeError(w, eris.Wrapf(checker.ErrInvalidCoordinates, "lng %q", q.Get("lng")))
		return
	}

	res, err := s.checker.CheckCoordinates(r.Context(), lat, lng)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCheckAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "Invalid request body.",
			Code:  checker.CodeInvalidInput,
		})
		return
	}

	res, err := s.checker.CheckAddress(r.Context(), req.Address)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTract(w http.ResponseWriter, r *http.Request) {
	geoid := zone.NormalizeGEOID(chi.URLParam(r, "geoid"))
	rec, ok := s.checker.Lookup().Get(geoid)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error: "Census tract " + geoid + " is not a designated Opportunity Zone.",
			Code:  codeNotFound,
		})
		return
	}
	writeJSON(w, http.StatusOK, tractResponse{GEOID: geoid, LookupRecord: rec})
}

// StatusFor maps a checker error code to an HTTP status.
func StatusFor(code string) int {
	switch code {
	case checker.CodeNotReady, checker.CodeLoadFailed, checker.CodeGeocodeUnavailable:
		return http.StatusServiceUnavailable
	case checker.CodeInvalidInput:
		return http.StatusBadRequest
	case checker.CodeAddressNotFound:
		return http.StatusNotFound
	case checker.CodeGeocodeAmbiguous:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := checker.Code(err)
	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		s.log.Warn("check failed", zap.String("code", code), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: checker.UserMessage(err), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
