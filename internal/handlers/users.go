package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/internal/middleware"
	"github.com/charlesng35/opsdash/internal/services"
	apperrors "github.com/charlesng35/opsdash/pkg/errors"
	"github.com/charlesng35/opsdash/pkg/response"
)

// UserHandler exposes the role lookup remote clients resolve through.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type roleResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// GET /api/users/:id/role
//
// Only the caller's own role can be read. A null role is returned as the
// empty string; a missing or inactive account is 404.
func (h *UserHandler) Role(c *gin.Context) {
	callerID := c.GetString(middleware.CtxUserIDKey)
	id := strings.TrimSpace(c.Param("id"))
	if callerID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}
	if id != callerID {
		response.Error(c, apperrors.ErrForbidden)
		return
	}

	role, err := h.users.QueryRole(requestContext(c), id)
	if err != nil {
		if errors.Is(err, identity.ErrRoleNotFound) {
			response.Error(c, apperrors.ErrNotFound.WithMessage("role not found"))
			return
		}
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, roleResponse{UserID: id, Role: role})
}
