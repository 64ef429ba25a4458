package roles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sproutly/sproutly/internal/assignment"
	"github.com/sproutly/sproutly/internal/platform/httpx"
	"github.com/sproutly/sproutly/internal/shared"
	"github.com/sproutly/sproutly/internal/tenant"
)

// AssignmentsPort manages user-role assignments on the handler's behalf.
type AssignmentsPort interface {
	AssignRole(ctx context.Context, scope tenant.Scope, a assignment.UserRoleAssignment) error
	RemoveRole(ctx context.Context, scope tenant.Scope, userID, roleID int64) (bool, error)
}

// Handler manages role administration endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	assignments AssignmentsPort
	validate    *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, assignments AssignmentsPort) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		assignments: assignments,
		validate:    validator.New(),
	}
}

// MountRoutes registers role routes. Assignment mutations additionally pass
// through the provided service-token guard.
func (h *Handler) MountRoutes(r chi.Router, requireToken func(http.Handler) http.Handler) {
	r.Get("/", h.listRoles)
	r.With(requireToken).Post("/{roleID}/assignments", h.assignRole)
	r.With(requireToken).Delete("/{roleID}/assignments/{userID}", h.removeRole)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.ScopeFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "identity required")
		return
	}
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok || !id.Admin {
		httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "admin capability required")
		return
	}
	list, err := h.service.ListRoles(r.Context(), scope)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
		return
	}
	if list == nil {
		list = []Role{}
	}
	httpx.OK(w, map[string]any{"roles": list})
}

type assignRoleRequest struct {
	UserID    int64      `json:"userId" validate:"required,gt=0"`
	IsPrimary bool       `json:"isPrimary"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	GrantorID *int64     `json:"grantorId"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.ScopeFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "identity required")
		return
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "roleID must be an integer")
		return
	}
	var body assignRoleRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "invalid request body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "userId is required")
		return
	}

	err = h.assignments.AssignRole(r.Context(), scope, assignment.UserRoleAssignment{
		UserID:    body.UserID,
		RoleID:    roleID,
		IsPrimary: body.IsPrimary,
		StartTime: body.StartTime,
		EndTime:   body.EndTime,
		GrantorID: body.GrantorID,
	})
	if err != nil {
		switch {
		case errors.Is(err, assignment.ErrOverlappingWindow):
			httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "overlapping validity window")
		case errors.Is(err, assignment.ErrDuplicateGrant):
			httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "assignment already exists")
		default:
			h.logger.Error("assign role",
				slog.Int64("role_id", roleID), slog.Int64("user_id", body.UserID), slog.Any("error", err))
			httpx.Fail(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
		}
		return
	}
	httpx.OK(w, map[string]any{"assigned": true})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.ScopeFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "identity required")
		return
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "roleID must be an integer")
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "userID must be an integer")
		return
	}

	removed, err := h.assignments.RemoveRole(r.Context(), scope, userID, roleID)
	if err != nil {
		h.logger.Error("remove role",
			slog.Int64("role_id", roleID), slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
		return
	}
	httpx.OK(w, map[string]any{"removed": removed})
}
