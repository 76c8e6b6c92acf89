package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Overland-East-Bay/rider-standings-api/internal/app/members"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/ridermap"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/standings"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
)

// maxBodyBytes caps request bodies; every JSON body in this API is a small form.
const maxBodyBytes = 1 << 20

// Server holds the HTTP handlers. Each handler decodes, calls one service operation and encodes.
type Server struct {
	Members   *members.Service
	Standings *standings.Service
	RiderMap  *ridermap.Service

	logger *slog.Logger
}

func NewServer(membersSvc *members.Service, standingsSvc *standings.Service, riderMapSvc *ridermap.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Members:   membersSvc,
		Standings: standingsSvc,
		RiderMap:  riderMapSvc,
		logger:    logger.With("component", "httpapi"),
	}
}

func (s *Server) RegisterMember(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return
	}
	var body RegisterMemberRequest
	if !decodeBody(w, r, &body) {
		return
	}

	m, score, err := s.Members.RegisterMember(r.Context(), p.Subject, body.toInput())
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterMemberResponse{
		Member: memberFromDomain(m),
		Score:  scoreFromDomain(score),
	})
}

func (s *Server) GetMyMember(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return
	}
	m, err := s.Members.GetMyMember(r.Context(), p.Subject)
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, memberFromDomain(m))
}

func (s *Server) ListMembers(w http.ResponseWriter, r *http.Request) {
	approvedOnly := false
	if v := r.URL.Query().Get("approved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid approved", map[string]any{"approved": "must be true or false"})
			return
		}
		approvedOnly = b
	}
	ms, err := s.Members.ListMembers(r.Context(), approvedOnly)
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	out := MemberListResponse{Members: make([]MemberResponse, 0, len(ms))}
	for _, m := range ms {
		out.Members = append(out.Members, memberFromDomain(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(w, r)
	if !ok {
		return
	}
	m, err := s.Members.GetMember(r.Context(), id)
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, memberFromDomain(m))
}

func (s *Server) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(w, r)
	if !ok {
		return
	}
	var body UpdateMemberRequest
	if !decodeBody(w, r, &body) {
		return
	}
	m, err := s.Members.UpdateMember(r.Context(), id, body.toInput())
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, memberFromDomain(m))
}

func (s *Server) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(w, r)
	if !ok {
		return
	}
	if err := s.Members.DeleteMember(r.Context(), id); err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetScore(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(w, r)
	if !ok {
		return
	}
	sc, err := s.Standings.GetScore(r.Context(), id)
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreFromDomain(sc))
}

func (s *Server) RecomputeScore(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(w, r)
	if !ok {
		return
	}
	sc, err := s.Standings.RecomputeCurrentScore(r.Context(), id)
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreFromDomain(sc))
}

func (s *Server) PlaceMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(w, r)
	if !ok {
		return
	}
	c, err := s.RiderMap.PlaceMember(r.Context(), id)
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, PositionResponse{Latitude: c.Latitude, Longitude: c.Longitude})
}

func (s *Server) ListStandings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Standings.Standings(r.Context())
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, standingsFromApp(rows))
}

// RunPlacements runs the whole-directory batch, or a single locality with ?locality=.
func (s *Server) RunPlacements(w http.ResponseWriter, r *http.Request) {
	var (
		sum ridermap.Summary
		err error
	)
	if q := r.URL.Query(); q.Has("locality") {
		sum, err = s.RiderMap.PlaceLocality(r.Context(), q.Get("locality"))
	} else {
		sum, err = s.RiderMap.PlaceAll(r.Context())
	}
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, placementSummaryFromApp(sum))
}

func (s *Server) RecomputeAllScores(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Standings.RecomputeAll(r.Context())
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recomputeSummaryFromApp(sum))
}

func (s *Server) VerifyPlacements(w http.ResponseWriter, r *http.Request) {
	rep, err := s.RiderMap.Verify(r.Context())
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyReportFromApp(rep))
}

func (s *Server) GetLocality(w http.ResponseWriter, r *http.Request) {
	l, err := s.RiderMap.LocalityPosition(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, localityFromDomain(l))
}

func (s *Server) MapRiders(w http.ResponseWriter, r *http.Request) {
	fc, err := s.RiderMap.Riders(r.Context())
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(fc)
}

// --- helpers ---

func memberIDParam(w http.ResponseWriter, r *http.Request) (domain.MemberID, bool) {
	raw := chi.URLParam(r, "memberId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid memberId", map[string]any{"memberId": "must be a positive integer"})
		return 0, false
	}
	return domain.MemberID(id), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "missing request body"
		}
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", msg, map[string]any{"body": strings.TrimSpace(err.Error())})
		return false
	}
	return true
}
