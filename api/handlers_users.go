package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fintechx-ops/core/auth"
	"fintechx-ops/core/rbac"
)

type createUserRequest struct {
	Username          string            `json:"username"`
	Email             string            `json:"email"`
	Password          string            `json:"password"`
	Role              string            `json:"role"`
	FirstName         string            `json:"first_name"`
	LastName          string            `json:"last_name"`
	CustomPermissions []string          `json:"custom_permissions"`
	Metadata          map[string]any    `json:"metadata"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	perms := make([]rbac.Permission, 0, len(req.CustomPermissions))
	for _, p := range req.CustomPermissions {
		parsed, err := rbac.ParsePermission(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		perms = append(perms, parsed)
	}
	id, err := s.authority.CreateUser(r.Context(), auth.CreateUserInput{
		Username:          req.Username,
		Email:             req.Email,
		Password:          req.Password,
		Role:              rbac.Role(req.Role),
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		CustomPermissions: perms,
		Metadata:          req.Metadata,
	})
	if err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	user, _ := s.authority.GetUser(id)
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if roleParam := r.URL.Query().Get("role"); roleParam != "" {
		role, err := rbac.ParseRole(roleParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": s.authority.ListUsersByRole(role)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": s.authority.ListUsers()})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authority.GetUser(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

type updateUserRequest struct {
	Email             *string         `json:"email"`
	Role              *string         `json:"role"`
	FirstName         *string         `json:"first_name"`
	LastName          *string         `json:"last_name"`
	CustomPermissions *[]string       `json:"custom_permissions"`
	Metadata          map[string]any  `json:"metadata"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	upd := auth.UserUpdate{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Metadata:  req.Metadata,
	}
	if req.Role != nil {
		role := rbac.Role(*req.Role)
		upd.Role = &role
	}
	if req.CustomPermissions != nil {
		perms := make([]rbac.Permission, 0, len(*req.CustomPermissions))
		for _, p := range *req.CustomPermissions {
			parsed, err := rbac.ParsePermission(p)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			perms = append(perms, parsed)
		}
		upd.CustomPermissions = &perms
	}
	id := chi.URLParam(r, "id")
	if err := s.authority.UpdateUser(r.Context(), id, upd); err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	user, _ := s.authority.GetUser(id)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if actor := sessionUser(r); actor != nil && actor.ID == id {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}
	if err := s.authority.DeleteUser(r.Context(), id); err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type lockUserRequest struct {
	Duration string `json:"duration"`
}

func (s *Server) handleLockUser(w http.ResponseWriter, r *http.Request) {
	var req lockUserRequest
	_ = readJSON(r, &req)
	var d time.Duration
	if req.Duration != "" {
		parsed, err := time.ParseDuration(req.Duration)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
		d = parsed
	}
	if err := s.authority.LockUser(r.Context(), chi.URLParam(r, "id"), d); err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUnlockUser(w http.ResponseWriter, r *http.Request) {
	if err := s.authority.UnlockUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleActivateUser(w http.ResponseWriter, r *http.Request) {
	if err := s.authority.ActivateUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	if err := s.authority.DeactivateUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.authority.ResetPassword(r.Context(), chi.URLParam(r, "id"), req.NewPassword); err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleExportUsers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="users.json"`)
	if err := s.authority.ExportUsers(w); err != nil {
		s.logger.Errorf("users export: %v", err)
	}
}

func (s *Server) handleImportUsers(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	n, err := s.authority.ImportUsers(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": n})
}
