package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/banyan/pkg/kinship"
	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/persons"
	"github.com/Ramsey-B/banyan/pkg/tracing"
)

// RelationshipNotifier publishes relationship lifecycle events.
type RelationshipNotifier interface {
	RelationshipCreated(ctx context.Context, rel *models.Relationship)
}

// PersonHandler handles direct person CRUD and relationship creation against
// the live graph.
type PersonHandler struct {
	persons  *persons.Service
	kinship  *kinship.Engine
	notifier RelationshipNotifier
	logger   ectologger.Logger
}

func NewPersonHandler(personService *persons.Service, kinshipEngine *kinship.Engine, notifier RelationshipNotifier, logger ectologger.Logger) *PersonHandler {
	return &PersonHandler{
		persons:  personService,
		kinship:  kinshipEngine,
		notifier: notifier,
		logger:   logger,
	}
}

// Register registers person and relationship routes
func (h *PersonHandler) Register(g *echo.Group) {
	g.POST("/persons", h.Create)
	g.GET("/persons/:person_id", h.Get)
	g.PATCH("/persons/:person_id", h.Update)
	g.DELETE("/persons/:person_id", h.Delete)
	g.GET("/persons/:person_id/relations", h.Relations)
	g.GET("/groups/:group_id/persons", h.List)
	g.POST("/groups/:group_id/relationships", h.CreateRelationship)
}

func (h *PersonHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "person_handler.Create")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var req models.CreatePersonRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	person, err := h.persons.Create(ctx, userID, &req)
	if err != nil {
		return err
	}
	return CreatedResponse(c, person)
}

func (h *PersonHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "person_handler.Get")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	personID, err := ParseUUID(c, "person_id")
	if err != nil {
		return err
	}

	person, err := h.persons.Get(ctx, personID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, person)
}

// List returns the group's persons, filtered by the optional name query.
func (h *PersonHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "person_handler.List")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	groupID, err := ParseUUID(c, "group_id")
	if err != nil {
		return err
	}

	if name := c.QueryParam("name"); name != "" {
		found, err := h.persons.Search(ctx, groupID, userID, name)
		if err != nil {
			return err
		}
		return SuccessResponse(c, found)
	}

	people, err := h.persons.List(ctx, groupID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, people)
}

func (h *PersonHandler) Update(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "person_handler.Update")
	defer span.End()

	userID, err := GetUserID(c)
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

	person, err := h.persons.Update(ctx, personID, userID, patch)
	if err != nil {
		return err
	}
	return SuccessResponse(c, person)
}

func (h *PersonHandler) Delete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "person_handler.Delete")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	personID, err := ParseUUID(c, "person_id")
	if err != nil {
		return err
	}

	if err := h.persons.Delete(ctx, personID, userID); err != nil {
		return err
	}
	return NoContentResponse(c)
}

func (h *PersonHandler) Relations(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "person_handler.Relations")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	personID, err := ParseUUID(c, "person_id")
	if err != nil {
		return err
	}

	relations, err := h.persons.Relations(ctx, personID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, relations)
}

// CreateRelationship runs the invariant checks and sibling/parent
// synchronization before the edge lands in the live graph.
func (h *PersonHandler) CreateRelationship(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "person_handler.CreateRelationship")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	groupID, err := ParseUUID(c, "group_id")
	if err != nil {
		return err
	}

	var req models.CreateRelationshipRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	rel, err := h.kinship.CreateRelationship(ctx, groupID, userID, req)
	if err != nil {
		return err
	}

	h.notifier.RelationshipCreated(ctx, rel)
	return CreatedResponse(c, rel)
}
