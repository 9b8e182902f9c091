package changeset

import (
	"context"
	"database/sql"
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

const changesetColumns = "id, workspace_id, action_type, entity_type, entity_id, payload, previous_payload, sequence_number, created_at"

// Repository handles changeset persistence
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

// ListByWorkspace returns the workspace's change log in sequence order.
func (r *Repository) ListByWorkspace(ctx context.Context, workspaceID string) ([]models.ChangeSet, error) {
	ctx, span := tracing.StartSpan(ctx, "changeset.Repository.ListByWorkspace")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(changesetColumns)
	sb.From("changesets")
	sb.Where(sb.Equal("workspace_id", workspaceID))
	sb.OrderBy("sequence_number ASC")

	query, args := sb.Build()
	var sets []models.ChangeSet
	if err := database.Resolve(ctx, r.db).SelectContext(ctx, &sets, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"workspace_id": workspaceID}).Error("Failed to list changesets")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list changesets: %v", err)
	}
	return sets, nil
}

// ListByWorkspaceAndEntity returns the workspace's change log entries for one
// entity, in sequence order.
func (r *Repository) ListByWorkspaceAndEntity(ctx context.Context, workspaceID, entityID string) ([]models.ChangeSet, error) {
	ctx, span := tracing.StartSpan(ctx, "changeset.Repository.ListByWorkspaceAndEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(changesetColumns)
	sb.From("changesets")
	sb.Where(sb.Equal("workspace_id", workspaceID), sb.Equal("entity_id", entityID))
	sb.OrderBy("sequence_number ASC")

	query, args := sb.Build()
	var sets []models.ChangeSet
	if err := database.Resolve(ctx, r.db).SelectContext(ctx, &sets, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"workspace_id": workspaceID, "entity_id": entityID}).Error("Failed to list changesets for entity")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list changesets: %v", err)
	}
	return sets, nil
}

// MaxSequence returns the highest sequence number in the workspace, 0 if the
// log is empty.
func (r *Repository) MaxSequence(ctx context.Context, workspaceID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "changeset.Repository.MaxSequence")
	defer span.End()

	query := `SELECT COALESCE(MAX(sequence_number), 0) FROM changesets WHERE workspace_id = $1`
	var max int
	if err := database.Resolve(ctx, r.db).GetContext(ctx, &max, query, workspaceID); err != nil && err != sql.ErrNoRows {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"workspace_id": workspaceID}).Error("Failed to get max sequence number")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get max sequence number: %v", err)
	}
	return max, nil
}

// Create appends a changeset to the log.
func (r *Repository) Create(ctx context.Context, cs *models.ChangeSet) (*models.ChangeSet, error) {
	ctx, span := tracing.StartSpan(ctx, "changeset.Repository.Create")
	defer span.End()

	if cs.ID == "" {
		cs.ID = uuid.New().String()
	}
	cs.CreatedAt = time.Now().UTC()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("changesets")
	ib.Cols("id", "workspace_id", "action_type", "entity_type", "entity_id", "payload", "previous_payload", "sequence_number", "created_at")
	ib.Values(cs.ID, cs.WorkspaceID, cs.ActionType, cs.EntityType, cs.EntityID, []byte(cs.Payload), []byte(cs.PreviousPayload), cs.SequenceNumber, cs.CreatedAt)

	query, args := ib.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"workspace_id": cs.WorkspaceID,
			"action_type":  cs.ActionType,
			"entity_id":    cs.EntityID,
		}).Error("Failed to create changeset")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create changeset: %v", err)
	}
	return cs, nil
}

// DeleteByWorkspace clears the workspace's change log.
func (r *Repository) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	ctx, span := tracing.StartSpan(ctx, "changeset.Repository.DeleteByWorkspace")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("changesets")
	db.Where(db.Equal("workspace_id", workspaceID))

	query, args := db.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"workspace_id": workspaceID}).Error("Failed to delete changesets")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete changesets: %v", err)
	}
	return nil
}
