package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/passwords-you-take-anywhere/server/internal/common"
	"github.com/passwords-you-take-anywhere/server/internal/server/metrics"
	"github.com/passwords-you-take-anywhere/server/internal/server/services"
)

// Request/response payloads. []byte fields travel as base64 strings, the
// encoding/json default.

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type registerResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type meResponse struct {
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

type changeItem struct {
	ID           string     `json:"id"`
	UsernameData []byte     `json:"username_data"`
	PasswordData []byte     `json:"password_data"`
	Domains      [][]byte   `json:"domains"`
	Notes        []byte     `json:"notes"`
	CreatedAt    time.Time  `json:"created_at"`
	Updated      time.Time  `json:"updated"`
	DeletedAt    *time.Time `json:"deleted_at"`
}

type changesResponse struct {
	Changes    []changeItem `json:"changes"`
	NextCursor *string      `json:"next_cursor"`
	HasMore    bool         `json:"has_more"`
}

type upsertItem struct {
	ID           string    `json:"id" validate:"required"`
	UsernameData []byte    `json:"username_data"`
	PasswordData []byte    `json:"password_data"`
	Domains      [][]byte  `json:"domains"`
	Notes        []byte    `json:"notes"`
	Updated      time.Time `json:"updated" validate:"required"`
}

type deleteItem struct {
	ID      string    `json:"id" validate:"required"`
	Updated time.Time `json:"updated" validate:"required"`
}

type pushRequest struct {
	Creates []upsertItem `json:"creates"`
	Updates []upsertItem `json:"updates"`
	Deletes []deleteItem `json:"deletes"`
}

type conflictItem struct {
	ID            string    `json:"id"`
	ClientUpdated time.Time `json:"client_updated"`
	ServerUpdated time.Time `json:"server_updated"`
	Reason        string    `json:"reason"`
}

type pushResponse struct {
	Applied   int            `json:"applied"`
	Conflicts []conflictItem `json:"conflicts"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func (s *Server) decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return s.validate.Struct(dst)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, err := s.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorEmailTaken) {
			writeError(w, http.StatusConflict, common.ErrorEmailTaken.Error())
			return
		}
		s.logger.Error(r.Context(), err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info(r.Context(), "registered", "email", user.Email)
	writeJSON(w, http.StatusCreated, registerResponse{ID: user.ID, Email: user.Email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	pair, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		s.logger.Error(r.Context(), err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    pair.AccessToken,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	pair, err := s.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) || errors.Is(err, common.ErrSessionExpired) {
			writeError(w, http.StatusUnauthorized, "Invalid or expired session")
			return
		}
		s.logger.Error(r.Context(), err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.RefreshToken != "" {
		if err := s.users.Logout(r.Context(), req.RefreshToken); err != nil {
			s.logger.Error(r.Context(), err.Error())
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    "",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	profile, err := s.users.Profile(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeError(w, http.StatusUnauthorized, "User not found")
			return
		}
		s.logger.Error(r.Context(), err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Email: profile.Email, Avatar: profile.Avatar})
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	metrics.ChangesRequestsTotal.Inc()

	q := r.URL.Query()

	var since *time.Time
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since format")
			return
		}
		since = &ts
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	records, nextCursor, hasMore, err := s.sync.GetChanges(
		r.Context(), userIDFromContext(r.Context()), since, q.Get("cursor"), limit)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, "Invalid cursor format")
			return
		}
		s.logger.Error(r.Context(), err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := changesResponse{Changes: make([]changeItem, 0, len(records)), HasMore: hasMore}
	for _, rec := range records {
		resp.Changes = append(resp.Changes, changeItem{
			ID:           rec.ID,
			UsernameData: rec.UsernameData,
			PasswordData: rec.PasswordData,
			Domains:      rec.Domains,
			Notes:        rec.Notes,
			CreatedAt:    rec.CreatedAt,
			Updated:      rec.Updated,
			DeletedAt:    rec.DeletedAt,
		})
	}
	if nextCursor != "" {
		resp.NextCursor = &nextCursor
	}

	metrics.ChangesRecordsTotal.Add(float64(len(resp.Changes)))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	for _, item := range req.Creates {
		if err := s.validate.Struct(item); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}
	for _, item := range req.Updates {
		if err := s.validate.Struct(item); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}
	for _, item := range req.Deletes {
		if err := s.validate.Struct(item); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	result, err := s.sync.PushChanges(
		r.Context(), userIDFromContext(r.Context()),
		toUpserts(req.Creates), toUpserts(req.Updates), toDeletes(req.Deletes))
	if err != nil {
		s.logger.Error(r.Context(), err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := pushResponse{Applied: result.Applied, Conflicts: make([]conflictItem, 0, len(result.Conflicts))}
	for _, c := range result.Conflicts {
		resp.Conflicts = append(resp.Conflicts, conflictItem{
			ID:            c.ID,
			ClientUpdated: c.ClientUpdated,
			ServerUpdated: c.ServerUpdated,
			Reason:        c.Reason,
		})
	}

	metrics.PushAppliedTotal.Add(float64(result.Applied))
	metrics.PushConflictsTotal.Add(float64(len(result.Conflicts)))
	writeJSON(w, http.StatusOK, resp)
}

func toUpserts(items []upsertItem) []*services.RecordUpsert {
	out := make([]*services.RecordUpsert, 0, len(items))
	for _, it := range items {
		out = append(out, &services.RecordUpsert{
			ID:           it.ID,
			UsernameData: it.UsernameData,
			PasswordData: it.PasswordData,
			Notes:        it.Notes,
			Domains:      it.Domains,
			Updated:      it.Updated,
		})
	}
	return out
}

func toDeletes(items []deleteItem) []*services.RecordDelete {
	out := make([]*services.RecordDelete, 0, len(items))
	for _, it := range items {
		out = append(out, &services.RecordDelete{ID: it.ID, Updated: it.Updated})
	}
	return out
}
