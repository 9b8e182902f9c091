package handlers

import (
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/banyan/pkg/groups"
	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/tracing"
	"github.com/Ramsey-B/banyan/pkg/treeview"
)

// DefaultTreeDepth bounds tree views when the client does not ask for one.
const DefaultTreeDepth = 3

// GroupHandler handles group lifecycle, membership, and tree views.
type GroupHandler struct {
	groups *groups.Service
	trees  *treeview.Service
	logger ectologger.Logger
}

func NewGroupHandler(groupService *groups.Service, treeService *treeview.Service, logger ectologger.Logger) *GroupHandler {
	return &GroupHandler{
		groups: groupService,
		trees:  treeService,
		logger: logger,
	}
}

// Register registers group routes
func (h *GroupHandler) Register(g *echo.Group) {
	g.POST("/groups", h.Create)
	g.GET("/groups/:group_id", h.Get)
	g.GET("/groups/:group_id/members", h.Members)
	g.POST("/groups/:group_id/members", h.Join)
	g.DELETE("/groups/:group_id/members", h.Leave)
	g.GET("/groups/:group_id/tree", h.Tree)
	g.GET("/groups/:group_id/lineage", h.Lineage)
}

func (h *GroupHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "group_handler.Create")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var req models.CreateGroupRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	group, err := h.groups.Create(ctx, userID, &req)
	if err != nil {
		return err
	}
	return CreatedResponse(c, group)
}

func (h *GroupHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "group_handler.Get")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	groupID, err := ParseUUID(c, "group_id")
	if err != nil {
		return err
	}

	group, err := h.groups.Get(ctx, groupID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, group)
}

func (h *GroupHandler) Members(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "group_handler.Members")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	groupID, err := ParseUUID(c, "group_id")
	if err != nil {
		return err
	}

	members, err := h.groups.Members(ctx, groupID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, members)
}

func (h *GroupHandler) Join(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "group_handler.Join")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	groupID, err := ParseUUID(c, "group_id")
	if err != nil {
		return err
	}

	member, err := h.groups.Join(ctx, groupID, userID)
	if err != nil {
		return err
	}
	return CreatedResponse(c, member)
}

func (h *GroupHandler) Leave(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "group_handler.Leave")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	groupID, err := ParseUUID(c, "group_id")
	if err != nil {
		return err
	}

	if err := h.groups.Leave(ctx, groupID, userID); err != nil {
		return err
	}
	return NoContentResponse(c)
}

// Tree returns the laid-out view around a focus person. focus_person_id
// defaults to the group's first person, depth to DefaultTreeDepth.
func (h *GroupHandler) Tree(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "group_handler.Tree")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	groupID, err := ParseUUID(c, "group_id")
	if err != nil {
		return err
	}

	focusID := c.QueryParam("focus_person_id")
	depth := DefaultTreeDepth
	if raw := c.QueryParam("depth"); raw != "" {
		depth, err = strconv.Atoi(raw)
		if err != nil || depth < 0 {
			return BadRequest("depth must be a non-negative integer")
		}
	}

	view, err := h.trees.BuildView(ctx, groupID, userID, focusID, depth)
	if err != nil {
		return err
	}
	return SuccessResponse(c, view)
}

// Lineage classifies the group's persons against a focus person's paternal
// and maternal lines.
func (h *GroupHandler) Lineage(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "group_handler.Lineage")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	groupID, err := ParseUUID(c, "group_id")
	if err != nil {
		return err
	}

	view, err := h.trees.Lineage(ctx, groupID, userID, c.QueryParam("focus_person_id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, view)
}
