package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/codesync/collab/internal/auth"
	"github.com/codesync/collab/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog/log"
)

const (
	maxCodeLen      = 1 << 20
	maxActivityPage = 200
)

type handlers struct {
	deps Deps
}

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotMember):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// bind decodes a JSON body and validates it.
func bind(c *gin.Context, req validation.Validatable) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func caller(c *gin.Context) domain.Identity {
	ident, _, _ := auth.FromContext(c)
	return ident
}

// requireRole resolves the caller's role in the workspace of the request.
func (h *handlers) requireRole(c *gin.Context) (domain.WorkspaceID, domain.Role, error) {
	ws := domain.WorkspaceID(c.Param("id"))
	role, err := h.deps.Members.GetRole(c.Request.Context(), ws, caller(c).UserID)
	if errors.Is(err, domain.ErrNotMember) {
		return ws, "", fmt.Errorf("%w: not a member of this workspace", domain.ErrForbidden)
	}
	return ws, role, err
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": len(h.deps.Orch.Rooms.List())})
}

type sessionRequest struct {
	Token string `json:"token"`
}

func (r *sessionRequest) Validate() error {
	return validation.ValidateStruct(r, validation.Field(&r.Token, validation.Required))
}

// createSession keeps a token in the session cookie so browsers can open
// the socket without an Authorization header.
func (h *handlers) createSession(c *gin.Context) {
	var req sessionRequest
	if err := bind(c, &req); err != nil {
		handleError(c, err)
		return
	}
	var ident domain.Identity
	if h.deps.Verifier.Enabled() {
		var err error
		if ident, err = h.deps.Verifier.Verify(req.Token); err != nil {
			handleError(c, err)
			return
		}
	}
	s := sessions.Default(c)
	s.Set(auth.SessionTokenKey, req.Token)
	if err := s.Save(); err != nil {
		handleError(c, fmt.Errorf("save session: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": ident.UserID, "username": ident.Username})
}

func (h *handlers) deleteSession(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	if err := s.Save(); err != nil {
		handleError(c, fmt.Errorf("save session: %w", err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) presence(c *gin.Context) {
	ws, _, err := h.requireRole(c)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspaceId": ws, "members": h.deps.Orch.ListPresent(ws)})
}

func (h *handlers) activity(c *gin.Context) {
	ws, _, err := h.requireRole(c)
	if err != nil {
		handleError(c, err)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > maxActivityPage {
		handleError(c, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxActivityPage))
		return
	}
	events, err := h.deps.Feed.ListActivity(c.Request.Context(), ws, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	if events == nil {
		events = []domain.ActivityEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"workspaceId": ws, "activities": events})
}

type roleChangeRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (r *roleChangeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.UserID, validation.Required, validation.Length(1, domain.MaxIDLen)),
		validation.Field(&r.Role,
			validation.Required,
			validation.In(string(domain.RoleEditor), string(domain.RoleViewer)),
		),
	)
}

// changeRole is the owner-only role update. Live connections of the member
// pick up the new role immediately.
func (h *handlers) changeRole(c *gin.Context) {
	ws, callerRole, err := h.requireRole(c)
	if err != nil {
		handleError(c, err)
		return
	}
	if callerRole != domain.RoleOwner {
		handleError(c, fmt.Errorf("%w: only the owner can change roles", domain.ErrForbidden))
		return
	}
	var req roleChangeRequest
	if err := bind(c, &req); err != nil {
		handleError(c, err)
		return
	}
	ctx := c.Request.Context()
	target := domain.UserID(req.UserID)
	role := domain.Role(req.Role)

	oldRole, err := h.deps.Members.GetRole(ctx, ws, target)
	if err != nil {
		handleError(c, err)
		return
	}
	if oldRole == domain.RoleOwner {
		handleError(c, fmt.Errorf("%w: the owner cannot be demoted", domain.ErrForbidden))
		return
	}
	if oldRole == role {
		c.JSON(http.StatusOK, gin.H{"userId": target, "role": role, "oldRole": oldRole, "connections": 0})
		return
	}
	if err := h.deps.Members.SetRole(ctx, ws, target, role); err != nil {
		handleError(c, err)
		return
	}
	if h.deps.Activity != nil {
		h.deps.Activity.Record(domain.ActivityEvent{
			WorkspaceID: ws,
			UserID:      caller(c).UserID,
			ActionType:  domain.ActionRoleChanged,
			TargetID:    string(target),
			Metadata:    map[string]any{"oldRole": oldRole, "newRole": role},
		})
	}
	n := h.deps.Orch.UpdateRole(ws, target, oldRole, role)
	c.JSON(http.StatusOK, gin.H{"userId": target, "role": role, "oldRole": oldRole, "connections": n})
}

type executeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

func (r *executeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Code, validation.Length(0, maxCodeLen)),
		validation.Field(&r.Language, validation.Required, validation.Length(1, 16)),
	)
}

// execute always answers with {output, error}; only a malformed request or
// an unsupported language is a 400.
func (h *handlers) execute(c *gin.Context) {
	var req executeRequest
	if err := bind(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"output": "", "error": err.Error()})
		return
	}
	res, err := h.deps.Executor.Execute(c.Request.Context(), req.Code, req.Language)
	switch {
	case errors.Is(err, domain.ErrUnsupportedLanguage):
		c.JSON(http.StatusBadRequest, gin.H{"output": "", "error": err.Error()})
		return
	case errors.Is(err, domain.ErrExecTimeout):
		log.Info().Str("module", "adapters.http").Str("language", req.Language).Msg("execution timed out")
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("language", req.Language).Msg("execution failed")
		if res.Error == "" {
			res.Error = "execution failed"
		}
	}
	c.JSON(http.StatusOK, res)
}
