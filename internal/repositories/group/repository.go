package group

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

// Repository handles group persistence
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

// GetByID returns the group with the given id.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "name", "description", "admin_id", "version", "created_at", "updated_at")
	sb.From("groups")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var g models.Group
	if err := database.Resolve(ctx, r.db).GetContext(ctx, &g, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "group %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": id}).Error("Failed to get group")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get group: %v", err)
	}
	return &g, nil
}

// GetByIDForUpdate returns the group with its row locked for the duration of
// the transaction carried by ctx, serializing concurrent merges per group.
func (r *Repository) GetByIDForUpdate(ctx context.Context, id string) (*models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.GetByIDForUpdate")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "name", "description", "admin_id", "version", "created_at", "updated_at")
	sb.From("groups")
	sb.Where(sb.Equal("id", id))
	sb.ForUpdate()

	query, args := sb.Build()
	var g models.Group
	if err := database.Resolve(ctx, r.db).GetContext(ctx, &g, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "group %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": id}).Error("Failed to lock group")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to lock group: %v", err)
	}
	return &g, nil
}

// Create inserts a new group at version 0.
func (r *Repository) Create(ctx context.Context, g *models.Group) (*models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.Create")
	defer span.End()

	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("groups")
	ib.Cols("id", "name", "description", "admin_id", "version", "created_at", "updated_at")
	ib.Values(g.ID, g.Name, g.Description, g.AdminID, g.Version, g.CreatedAt, g.UpdatedAt)

	query, args := ib.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": g.ID, "name": g.Name}).Error("Failed to create group")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create group: %v", err)
	}
	return g, nil
}

// IncrementVersion atomically bumps the group version and returns the new
// value. Runs inside the merge replay transaction so two approvals on the same
// group serialize on the row lock.
func (r *Repository) IncrementVersion(ctx context.Context, id string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.IncrementVersion")
	defer span.End()

	query := `
		UPDATE groups
		SET version = version + 1,
		    updated_at = $2
		WHERE id = $1
		RETURNING version
	`
	var version int
	if err := database.Resolve(ctx, r.db).GetContext(ctx, &version, query, id, time.Now().UTC()); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return 0, httperror.NewHTTPErrorf(http.StatusNotFound, "group %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": id}).Error("Failed to increment group version")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to increment group version: %v", err)
	}
	return version, nil
}
