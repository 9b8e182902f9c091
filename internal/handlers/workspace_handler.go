package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/tracing"
	"github.com/Ramsey-B/banyan/pkg/workspace"
)

// WorkspaceHandler handles draft workspaces and their changeset logs.
type WorkspaceHandler struct {
	workspaces *workspace.Service
	logger     ectologger.Logger
}

func NewWorkspaceHandler(workspaceService *workspace.Service, logger ectologger.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{
		workspaces: workspaceService,
		logger:     logger,
	}
}

// Register registers workspace routes
func (h *WorkspaceHandler) Register(g *echo.Group) {
	g.POST("/groups/:group_id/workspaces", h.CreateOrGet)
	g.GET("/workspaces/:workspace_id", h.Get)
	g.GET("/workspaces/:workspace_id/changes", h.Changes)
	g.POST("/workspaces/:workspace_id/persons", h.StageCreate)
	g.PATCH("/workspaces/:workspace_id/persons/:person_id", h.StageUpdate)
	g.DELETE("/workspaces/:workspace_id/persons/:person_id", h.StageDelete)
	g.POST("/workspaces/:workspace_id/reset", h.Reset)
	g.POST("/workspaces/:workspace_id/commit", h.Commit)
}

// CreateOrGet returns the caller's open workspace for the group, creating one
// when none exists.
func (h *WorkspaceHandler) CreateOrGet(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace_handler.CreateOrGet")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	groupID, err := ParseUUID(c, "group_id")
	if err != nil {
		return err
	}

	ws, err := h.workspaces.CreateOrGet(ctx, groupID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, ws)
}

func (h *WorkspaceHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace_handler.Get")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	workspaceID, err := ParseUUID(c, "workspace_id")
	if err != nil {
		return err
	}

	ws, err := h.workspaces.Get(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, ws)
}

func (h *WorkspaceHandler) Changes(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace_handler.Changes")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	workspaceID, err := ParseUUID(c, "workspace_id")
	if err != nil {
		return err
	}

	changes, err := h.workspaces.Changes(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, changes)
}

func (h *WorkspaceHandler) StageCreate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace_handler.StageCreate")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	workspaceID, err := ParseUUID(c, "workspace_id")
	if err != nil {
		return err
	}

	var req models.StagePersonRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	cs, err := h.workspaces.StagePersonCreate(ctx, workspaceID, userID, &req)
	if err != nil {
		return err
	}
	return CreatedResponse(c, cs)
}

func (h *WorkspaceHandler) StageUpdate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace_handler.StageUpdate")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	workspaceID, err := ParseUUID(c, "workspace_id")
	if err != nil {
		return err
	}
	personID, err := ParseUUID(c, "person_id")
	if err != nil {
		return err
	}

	var patch models.PersonPatch
	if err := c.Bind(&patch); err != nil {
		return BadRequest("invalid request body")
	}

	cs, err := h.workspaces.StagePersonUpdate(ctx, workspaceID, userID, personID, patch)
	if err != nil {
		return err
	}
	return CreatedResponse(c, cs)
}

func (h *WorkspaceHandler) StageDelete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace_handler.StageDelete")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	workspaceID, err := ParseUUID(c, "workspace_id")
	if err != nil {
		return err
	}
	personID, err := ParseUUID(c, "person_id")
	if err != nil {
		return err
	}

	cs, err := h.workspaces.StagePersonDelete(ctx, workspaceID, userID, personID)
	if err != nil {
		return err
	}
	return CreatedResponse(c, cs)
}

func (h *WorkspaceHandler) Reset(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace_handler.Reset")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	workspaceID, err := ParseUUID(c, "workspace_id")
	if err != nil {
		return err
	}

	ws, err := h.workspaces.Reset(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, ws)
}

func (h *WorkspaceHandler) Commit(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace_handler.Commit")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	workspaceID, err := ParseUUID(c, "workspace_id")
	if err != nil {
		return err
	}

	var req models.CommitRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	mr, err := h.workspaces.Commit(ctx, workspaceID, userID, &req)
	if err != nil {
		return err
	}
	return CreatedResponse(c, mr)
}
