package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/ports"
)

// RoleHandler serves role administration endpoints.
type RoleHandler struct {
	service ports.RoleService
}

func NewRoleHandler(service ports.RoleService) *RoleHandler {
	return &RoleHandler{service: service}
}

type createRoleRequest struct {
	Name string `json:"name" validate:"required"`
}

type permissionRequest struct {
	Action       string `json:"action"        validate:"required"`
	ResourceType string `json:"resource_type"`
}

type roleSummary struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Permissions []domain.Permission `json:"permissions,omitempty"`
}

type listRolesResponse struct {
	Roles []roleSummary `json:"roles"`
}

func toRoleSummary(r *domain.Role) roleSummary {
	return roleSummary{ID: r.ID, Name: r.Name, Permissions: r.Permissions}
}

// List godoc
// @Summary      List roles
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  listRolesResponse
// @Failure      403  {object}  map[string]string
// @Router       /roles [get]
func (h *RoleHandler) List(c echo.Context) error {
	roles, err := h.service.ListRoles(c.Request().Context())
	if err != nil {
		return err
	}
	resp := listRolesResponse{Roles: make([]roleSummary, 0, len(roles))}
	for _, r := range roles {
		resp.Roles = append(resp.Roles, toRoleSummary(r))
	}
	return c.JSON(http.StatusOK, resp)
}

// Create godoc
// @Summary      Create a role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createRoleRequest  true  "Role name"
// @Success      201   {object}  roleSummary
// @Failure      400   {object}  map[string]string
// @Router       /roles [post]
func (h *RoleHandler) Create(c echo.Context) error {
	var req createRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.Name == "" {
		// name may also arrive as a query parameter
		req.Name = c.QueryParam("name")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	role, err := h.service.CreateRole(c.Request().Context(), req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toRoleSummary(role))
}

// Delete godoc
// @Summary      Delete a role
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Role ID"
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /roles/{id} [delete]
func (h *RoleHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.service.DeleteRole(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Role deleted successfully"})
}

// Assign godoc
// @Summary      Assign a role to a user
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path      int  true  "User ID"
// @Param        role_id  path      int  true  "Role ID"
// @Success      200      {object}  messageResponse
// @Failure      404      {object}  map[string]string
// @Router       /roles/assign/{user_id}/{role_id} [post]
func (h *RoleHandler) Assign(c echo.Context) error {
	userID, roleID, err := userRoleIDs(c)
	if err != nil {
		return err
	}
	if err := h.service.AssignRole(c.Request().Context(), userID, roleID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Role assigned to user successfully"})
}

// Remove godoc
// @Summary      Remove a role from a user
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path      int  true  "User ID"
// @Param        role_id  path      int  true  "Role ID"
// @Success      200      {object}  messageResponse
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Router       /roles/remove/{user_id}/{role_id} [delete]
func (h *RoleHandler) Remove(c echo.Context) error {
	userID, roleID, err := userRoleIDs(c)
	if err != nil {
		return err
	}
	if err := h.service.RemoveRole(c.Request().Context(), userID, roleID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Role removed from user successfully"})
}

// GrantPermission godoc
// @Summary      Grant a permission to a role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                true  "Role ID"
// @Param        body  body      permissionRequest  true  "Permission"
// @Success      200   {object}  roleSummary
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /roles/{id}/permissions [post]
func (h *RoleHandler) GrantPermission(c echo.Context) error {
	return h.changePermission(c, h.service.GrantPermission)
}

// RevokePermission godoc
// @Summary      Revoke a permission from a role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                true  "Role ID"
// @Param        body  body      permissionRequest  true  "Permission"
// @Success      200   {object}  roleSummary
// @Failure      404   {object}  map[string]string
// @Router       /roles/{id}/permissions [delete]
func (h *RoleHandler) RevokePermission(c echo.Context) error {
	return h.changePermission(c, h.service.RevokePermission)
}

type permissionChange func(ctx context.Context, roleID int64, perm domain.Permission) (*domain.Role, error)

func (h *RoleHandler) changePermission(c echo.Context, apply permissionChange) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req permissionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	role, err := apply(c.Request().Context(), id, domain.Permission{Action: req.Action, ResourceType: req.ResourceType})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toRoleSummary(role))
}

func userRoleIDs(c echo.Context) (int64, int64, error) {
	userID, err := pathID(c, "user_id")
	if err != nil {
		return 0, 0, err
	}
	roleID, err := pathID(c, "role_id")
	if err != nil {
		return 0, 0, err
	}
	return userID, roleID, nil
}
