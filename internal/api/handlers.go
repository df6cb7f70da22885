package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"teamcollab/pkg/interfaces"
	"teamcollab/pkg/types"
)

// CreateWorkspaceRequest creates a workspace owned by the caller.
type CreateWorkspaceRequest struct {
	Name      string   `json:"name" validate:"required,min=1,max=128"`
	MemberIDs []string `json:"memberIds"`
}

// CreateChannelRequest creates a channel inside a workspace.
type CreateChannelRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=128"`
	Description string   `json:"description" validate:"max=512"`
	Type        string   `json:"type" validate:"omitempty,oneof=public private"`
	MemberIDs   []string `json:"memberIds"`
}

// WorkspacesResponse lists the caller's workspaces.
type WorkspacesResponse struct {
	Workspaces []*types.Workspace `json:"workspaces"`
}

// MessagesResponse is a page of channel history or a search result set.
type MessagesResponse struct {
	Messages []*types.Message `json:"messages"`
}

func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request, identity *interfaces.Identity) {
	switch r.Method {
	case http.MethodGet:
		s.listWorkspaces(w, r, identity)
	case http.MethodPost:
		s.createWorkspace(w, r, identity)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listWorkspaces(w http.ResponseWriter, r *http.Request, identity *interfaces.Identity) {
	workspaces, err := s.store.GetUserWorkspaces(r.Context(), identity.UserID)
	if err != nil {
		s.sendError(w, "Failed to list workspaces", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, http.StatusOK, WorkspacesResponse{Workspaces: workspaces})
}

func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request, identity *interfaces.Identity) {
	var req CreateWorkspaceRequest
	if err := s.decode(r, &req); err != nil {
		s.sendError(w, "Invalid workspace payload", http.StatusBadRequest)
		return
	}

	// The owner is always a member; duplicates in the request are dropped.
	members := lo.Uniq(append([]string{identity.UserID}, req.MemberIDs...))

	workspace := &types.Workspace{
		ID:        uuid.New().String(),
		Name:      req.Name,
		OwnerID:   identity.UserID,
		MemberIDs: members,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if err := workspace.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.CreateWorkspace(r.Context(), workspace); err != nil {
		s.log.Error().Err(err).Str("owner_id", identity.UserID).Msg("workspace creation failed")
		s.sendError(w, "Failed to create workspace", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusCreated, workspace)
}

// handleWorkspaceSubresource routes /api/workspaces/{id}/channels and
// /api/workspaces/{id}/messages/search.
func (s *Server) handleWorkspaceSubresource(w http.ResponseWriter, r *http.Request, identity *interfaces.Identity) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/workspaces/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		s.sendError(w, "Workspace ID required", http.StatusBadRequest)
		return
	}
	workspaceID := parts[0]

	member, err := s.store.VerifyWorkspaceMembership(r.Context(), workspaceID, identity.UserID)
	if err != nil {
		s.sendError(w, "Failed to verify membership", http.StatusInternalServerError)
		return
	}
	if !member {
		s.sendError(w, "Not a member of this workspace", http.StatusForbidden)
		return
	}

	switch {
	case parts[1] == "channels" && r.Method == http.MethodPost:
		s.createChannel(w, r, identity, workspaceID)
	case parts[1] == "messages" && len(parts) > 2 && parts[2] == "search" && r.Method == http.MethodGet:
		s.searchMessages(w, r, workspaceID)
	default:
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) createChannel(w http.ResponseWriter, r *http.Request, identity *interfaces.Identity, workspaceID string) {
	var req CreateChannelRequest
	if err := s.decode(r, &req); err != nil {
		s.sendError(w, "Invalid channel payload", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = types.ChannelTypePublic
	}

	channel := &types.Channel{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		CreatedBy:   identity.UserID,
		MemberIDs:   lo.Uniq(append([]string{identity.UserID}, req.MemberIDs...)),
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
	if err := channel.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.CreateChannel(r.Context(), channel); err != nil {
		s.log.Error().Err(err).Str("workspace_id", workspaceID).Msg("channel creation failed")
		s.sendError(w, "Failed to create channel", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusCreated, channel)
}

func (s *Server) searchMessages(w http.ResponseWriter, r *http.Request, workspaceID string) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.sendError(w, "Search query required", http.StatusBadRequest)
		return
	}

	messages, err := s.store.SearchMessages(r.Context(), workspaceID, query)
	if err != nil {
		s.sendError(w, "Search failed", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, http.StatusOK, MessagesResponse{Messages: messages})
}

// handleChannelSubresource routes /api/channels/{id}/messages.
func (s *Server) handleChannelSubresource(w http.ResponseWriter, r *http.Request, identity *interfaces.Identity) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/channels/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		s.sendError(w, "Channel ID required", http.StatusBadRequest)
		return
	}
	channelID := parts[0]

	if parts[1] != "messages" || r.Method != http.MethodGet {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}

	if _, err := s.store.VerifyChannelAccess(r.Context(), channelID, identity.UserID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			s.sendError(w, "Channel not found or access denied", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to verify access", http.StatusInternalServerError)
		}
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)

	messages, err := s.store.GetChannelMessages(r.Context(), channelID, page, limit)
	if err != nil {
		s.sendError(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, http.StatusOK, MessagesResponse{Messages: messages})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
