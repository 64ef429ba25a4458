// Package permissions exposes the permission-check HTTP surface.
package permissions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/sproutly/sproutly/internal/catalog"
	"github.com/sproutly/sproutly/internal/platform/httpx"
	"github.com/sproutly/sproutly/internal/resolver"
	"github.com/sproutly/sproutly/internal/shared"
	"github.com/sproutly/sproutly/internal/tenant"
)

// ResolverPort is the resolution surface the handler delegates to.
type ResolverPort interface {
	Check(ctx context.Context, req resolver.CheckRequest) (resolver.Decision, error)
	BatchCheck(ctx context.Context, req resolver.BatchRequest) (resolver.BatchResult, error)
	PageActions(ctx context.Context, scope tenant.Scope, parentID *int64, parentPath string) ([]catalog.Node, bool, error)
}

// RoleCatalogPort serves the administrative role view.
type RoleCatalogPort interface {
	ListActiveNodesForRole(ctx context.Context, scope tenant.Scope, roleID int64) ([]catalog.Node, error)
}

// GrantsPort replaces a role's grant set.
type GrantsPort interface {
	ReplaceRoleGrants(ctx context.Context, scope tenant.Scope, roleID int64, permissionIDs []int64) (bool, error)
}

// InvalidatorPort forces the next snapshot read to rebuild.
type InvalidatorPort interface {
	Invalidate(ctx context.Context, scope tenant.Scope)
}

// Handler manages the /permissions endpoints.
type Handler struct {
	logger    *slog.Logger
	resolver  ResolverPort
	roleView  RoleCatalogPort
	grants    GrantsPort
	snapshots InvalidatorPort
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, res ResolverPort, roleView RoleCatalogPort, grants GrantsPort, snapshots InvalidatorPort) *Handler {
	return &Handler{
		logger:    logger,
		resolver:  res,
		roleView:  roleView,
		grants:    grants,
		snapshots: snapshots,
		validate:  validator.New(),
	}
}

// MountRoutes registers permission routes. Mutations additionally pass through
// the provided service-token guard.
func (h *Handler) MountRoutes(r chi.Router, requireToken func(http.Handler) http.Handler) {
	r.Get("/page-actions", h.pageActions)
	r.Post("/check", h.check)
	r.With(httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
		Post("/batch-check", h.batchCheck)
	r.Get("/role/{roleID}", h.roleNodes)
	r.With(requireToken).Put("/role/{roleID}", h.replaceRoleGrants)
}

func requestContext(r *http.Request) (tenant.Scope, shared.Identity, bool) {
	scope, ok := tenant.ScopeFromContext(r.Context())
	if !ok {
		return "", shared.Identity{}, false
	}
	id, ok := shared.IdentityFromContext(r.Context())
	return scope, id, ok
}

type checkRequest struct {
	Permission string `json:"permission" validate:"required,max=200"`
}

type checkResponse struct {
	HasPermission bool `json:"hasPermission"`
	IsAdmin       bool `json:"isAdmin"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	scope, id, ok := requestContext(r)
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "identity required")
		return
	}
	var body checkRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "invalid request body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "permission is required")
		return
	}

	decision, err := h.resolver.Check(r.Context(), resolver.CheckRequest{
		Scope:      scope,
		Identity:   id,
		Permission: body.Permission,
	})
	if err != nil {
		h.respondCheckError(w, r, err)
		return
	}
	httpx.OKWithMeta(w,
		checkResponse{HasPermission: decision.Granted, IsAdmin: id.Admin},
		httpx.NewMeta(id.UserID, id.Role, start, decision.FromCache()))
}

type batchCheckRequest struct {
	Permissions []string `json:"permissions" validate:"required,min=1,max=100,dive,max=200"`
}

type batchCheckResponse struct {
	Results map[string]bool   `json:"results"`
	Reasons map[string]string `json:"reasons,omitempty"`
	Summary resolver.Summary  `json:"summary"`
}

func (h *Handler) batchCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	scope, id, ok := requestContext(r)
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "identity required")
		return
	}
	var body batchCheckRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "invalid request body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "permissions must contain 1-100 entries")
		return
	}

	result, err := h.resolver.BatchCheck(r.Context(), resolver.BatchRequest{
		Scope:       scope,
		Identity:    id,
		Permissions: body.Permissions,
	})
	if err != nil {
		h.respondCheckError(w, r, err)
		return
	}
	httpx.OKWithMeta(w,
		batchCheckResponse{Results: result.Results, Reasons: result.Reasons, Summary: result.Summary},
		httpx.NewMeta(id.UserID, id.Role, start, result.Source == resolver.SourceCache))
}

type pageActionsResponse struct {
	Actions        []catalog.Node `json:"actions"`
	FromCache      bool           `json:"fromCache"`
	ResponseTimeMs int64          `json:"responseTimeMs"`
}

func (h *Handler) pageActions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	scope, _, ok := requestContext(r)
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "identity required")
		return
	}

	var parentID *int64
	if raw := r.URL.Query().Get("pageId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "pageId must be an integer")
			return
		}
		parentID = &id
	}
	parentPath := r.URL.Query().Get("pagePath")
	if parentID == nil && parentPath == "" {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "pageId or pagePath is required")
		return
	}

	actions, fromCache, err := h.resolver.PageActions(r.Context(), scope, parentID, parentPath)
	if err != nil {
		h.logger.Error("list page actions", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
		return
	}
	if actions == nil {
		actions = []catalog.Node{}
	}
	httpx.OK(w, pageActionsResponse{
		Actions:        actions,
		FromCache:      fromCache,
		ResponseTimeMs: time.Since(start).Milliseconds(),
	})
}

func (h *Handler) roleNodes(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := requestContext(r)
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "identity required")
		return
	}
	if !id.Admin {
		httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "admin capability required")
		return
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "roleID must be an integer")
		return
	}
	nodes, err := h.roleView.ListActiveNodesForRole(r.Context(), scope, roleID)
	if err != nil {
		h.logger.Error("list role nodes", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
		return
	}
	if nodes == nil {
		nodes = []catalog.Node{}
	}
	httpx.OK(w, map[string]any{"nodes": nodes})
}

type replaceGrantsRequest struct {
	PermissionIDs []int64 `json:"permissionIds" validate:"required"`
}

func (h *Handler) replaceRoleGrants(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := requestContext(r)
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "identity required")
		return
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "roleID must be an integer")
		return
	}
	var body replaceGrantsRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "invalid request body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "permissionIds is required")
		return
	}

	changed, err := h.grants.ReplaceRoleGrants(r.Context(), scope, roleID, body.PermissionIDs)
	if err != nil {
		h.logger.Error("replace role grants",
			slog.Int64("role_id", roleID), slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
		return
	}
	if changed {
		h.snapshots.Invalidate(r.Context(), scope)
	}
	httpx.OK(w, map[string]any{"updated": changed})
}

func (h *Handler) respondCheckError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, resolver.ErrMalformedPermission):
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "malformed permission")
	case errors.Is(err, resolver.ErrUndetermined):
		h.logger.Error("permission resolution undetermined",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, httpx.CodeServerError, "permission resolution failed")
	default:
		h.logger.Error("permission check", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
	}
}
