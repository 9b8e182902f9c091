package relationship

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/banyan/pkg/database"
	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/tracing"
)

const relationshipColumns = "id, group_id, from_person_id, to_person_id, type, start_date, end_date, created_at"

// Repository handles relationship edge persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) DB() database.DB {
	return r.db
}

// ListByGroup returns every edge in a group's graph.
func (r *Repository) ListByGroup(ctx context.Context, groupID string) ([]models.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListByGroup")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(relationshipColumns)
	sb.From("relationships")
	sb.Where(sb.Equal("group_id", groupID))
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var edges []models.Relationship
	if err := database.Resolve(ctx, r.db).SelectContext(ctx, &edges, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID}).Error("Failed to list relationships by group")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list relationships: %v", err)
	}
	return edges, nil
}

// ListByPerson returns every edge touching a person, in either direction.
func (r *Repository) ListByPerson(ctx context.Context, groupID, personID string) ([]models.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListByPerson")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(relationshipColumns)
	sb.From("relationships")
	sb.Where(
		sb.Equal("group_id", groupID),
		sb.Or(sb.Equal("from_person_id", personID), sb.Equal("to_person_id", personID)),
	)
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var edges []models.Relationship
	if err := database.Resolve(ctx, r.db).SelectContext(ctx, &edges, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID, "person_id": personID}).Error("Failed to list relationships by person")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list relationships: %v", err)
	}
	return edges, nil
}

// ListBetween returns all edges between two persons, in both directions.
func (r *Repository) ListBetween(ctx context.Context, groupID, personA, personB string) ([]models.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListBetween")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(relationshipColumns)
	sb.From("relationships")
	sb.Where(
		sb.Equal("group_id", groupID),
		sb.Or(
			sb.And(sb.Equal("from_person_id", personA), sb.Equal("to_person_id", personB)),
			sb.And(sb.Equal("from_person_id", personB), sb.Equal("to_person_id", personA)),
		),
	)

	query, args := sb.Build()
	var edges []models.Relationship
	if err := database.Resolve(ctx, r.db).SelectContext(ctx, &edges, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID, "person_a": personA, "person_b": personB}).Error("Failed to list relationships between persons")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list relationships: %v", err)
	}
	return edges, nil
}

// Create inserts a new edge.
func (r *Repository) Create(ctx context.Context, rel *models.Relationship) (*models.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Create")
	defer span.End()

	if rel.ID == "" {
		rel.ID = uuid.New().String()
	}
	rel.CreatedAt = time.Now().UTC()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("relationships")
	ib.Cols("id", "group_id", "from_person_id", "to_person_id", "type", "start_date", "end_date", "created_at")
	ib.Values(rel.ID, rel.GroupID, rel.FromPersonID, rel.ToPersonID, rel.Type, rel.StartDate, rel.EndDate, rel.CreatedAt)

	query, args := ib.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"group_id":       rel.GroupID,
			"from_person_id": rel.FromPersonID,
			"to_person_id":   rel.ToPersonID,
			"type":           rel.Type,
		}).Error("Failed to create relationship")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create relationship: %v", err)
	}
	return rel, nil
}

// DeleteByIDs removes the given edges.
func (r *Repository) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.DeleteByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("relationships")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	db.Where(db.In("id", args...))

	query, qargs := db.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, qargs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(ids)}).Error("Failed to delete relationships")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete relationships: %v", err)
	}
	return nil
}

// DeleteForPerson removes every edge touching a person. Used when a person is
// deleted, directly or through merge replay.
func (r *Repository) DeleteForPerson(ctx context.Context, groupID, personID string) error {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.DeleteForPerson")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("relationships")
	db.Where(
		db.Equal("group_id", groupID),
		db.Or(db.Equal("from_person_id", personID), db.Equal("to_person_id", personID)),
	)

	query, args := db.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID, "person_id": personID}).Error("Failed to delete relationships for person")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete relationships: %v", err)
	}
	return nil
}
