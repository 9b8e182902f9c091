package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/banyan/pkg/merge"
	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/tracing"
)

// MergeRequestHandler handles merge request review.
type MergeRequestHandler struct {
	merges *merge.Service
	logger ectologger.Logger
}

func NewMergeRequestHandler(mergeService *merge.Service, logger ectologger.Logger) *MergeRequestHandler {
	return &MergeRequestHandler{
		merges: mergeService,
		logger: logger,
	}
}

// Register registers merge request routes
func (h *MergeRequestHandler) Register(g *echo.Group) {
	g.GET("/groups/:group_id/merge-requests", h.ListByGroup)
	g.GET("/merge-requests/:merge_request_id", h.Get)
	g.POST("/merge-requests/:merge_request_id/approve", h.Approve)
	g.POST("/merge-requests/:merge_request_id/reject", h.Reject)
}

func (h *MergeRequestHandler) ListByGroup(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mergerequest_handler.ListByGroup")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	groupID, err := ParseUUID(c, "group_id")
	if err != nil {
		return err
	}

	status := models.MergeStatus(c.QueryParam("status"))
	requests, err := h.merges.ListByGroup(ctx, groupID, userID, status)
	if err != nil {
		return err
	}
	return SuccessResponse(c, requests)
}

func (h *MergeRequestHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mergerequest_handler.Get")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	mergeRequestID, err := ParseUUID(c, "merge_request_id")
	if err != nil {
		return err
	}

	mr, err := h.merges.Get(ctx, mergeRequestID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, mr)
}

// Approve replays the workspace onto the live graph. A conflicted outcome is
// still a 200; the result carries the conflict list.
func (h *MergeRequestHandler) Approve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mergerequest_handler.Approve")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	mergeRequestID, err := ParseUUID(c, "merge_request_id")
	if err != nil {
		return err
	}

	result, err := h.merges.Approve(ctx, mergeRequestID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

func (h *MergeRequestHandler) Reject(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mergerequest_handler.Reject")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	mergeRequestID, err := ParseUUID(c, "merge_request_id")
	if err != nil {
		return err
	}

	var req models.RejectRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	mr, err := h.merges.Reject(ctx, mergeRequestID, userID, &req)
	if err != nil {
		return err
	}
	return SuccessResponse(c, mr)
}
