package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"teamcollab/internal/auth"
	"teamcollab/pkg/types"
)

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=2,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest exchanges credentials for an access token.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse carries the access token plus the authenticated user.
type AuthResponse struct {
	Token string      `json:"token"`
	User  *types.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RegisterRequest
	if err := s.decode(r, &req); err != nil {
		s.sendError(w, "Invalid registration payload", http.StatusBadRequest)
		return
	}

	if _, err := s.store.GetUserByEmail(r.Context(), req.Email); err == nil {
		s.sendError(w, "Email already registered", http.StatusConflict)
		return
	} else if !errors.Is(err, types.ErrNotFound) {
		s.sendError(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.sendError(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	user := &types.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		Status:       types.StatusOffline,
		LastSeen:     time.Now(),
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		s.log.Error().Err(err).Str("email", req.Email).Msg("user creation failed")
		s.sendError(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		s.sendError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := s.decode(r, &req); err != nil {
		s.sendError(w, "Invalid login payload", http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || !user.IsActive {
		// The same response for unknown email and wrong password.
		s.sendError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		s.sendError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		s.sendError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}
