package workspace

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

const workspaceColumns = "id, group_id, user_id, base_version, status, created_at, updated_at"

// Repository handles workspace persistence
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

// GetByID returns the workspace with the given id.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(workspaceColumns)
	sb.From("workspaces")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var ws models.Workspace
	if err := database.Resolve(ctx, r.db).GetContext(ctx, &ws, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "workspace %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"workspace_id": id}).Error("Failed to get workspace")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get workspace: %v", err)
	}
	return &ws, nil
}

// FindByGroupAndUser returns the user's open workspace for the group, or nil.
// Open means EDITING or CONFLICT; submitted and merged workspaces stay behind
// as history.
func (r *Repository) FindByGroupAndUser(ctx context.Context, groupID, userID string) (*models.Workspace, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Repository.FindByGroupAndUser")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(workspaceColumns)
	sb.From("workspaces")
	sb.Where(
		sb.Equal("group_id", groupID),
		sb.Equal("user_id", userID),
		sb.In("status", string(models.WorkspaceEditing), string(models.WorkspaceConflict)),
	)
	sb.OrderBy("created_at").Desc()
	sb.Limit(1)

	query, args := sb.Build()
	var ws models.Workspace
	if err := database.Resolve(ctx, r.db).GetContext(ctx, &ws, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID, "user_id": userID}).Error("Failed to find workspace")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to find workspace: %v", err)
	}
	return &ws, nil
}

// Create inserts a new workspace.
func (r *Repository) Create(ctx context.Context, ws *models.Workspace) (*models.Workspace, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Repository.Create")
	defer span.End()

	if ws.ID == "" {
		ws.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	ws.CreatedAt = now
	ws.UpdatedAt = now

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("workspaces")
	ib.Cols("id", "group_id", "user_id", "base_version", "status", "created_at", "updated_at")
	ib.Values(ws.ID, ws.GroupID, ws.UserID, ws.BaseVersion, ws.Status, ws.CreatedAt, ws.UpdatedAt)

	query, args := ib.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": ws.GroupID, "user_id": ws.UserID}).Error("Failed to create workspace")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create workspace: %v", err)
	}
	return ws, nil
}

// UpdateStatus moves the workspace to a new state.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status models.WorkspaceStatus) error {
	ctx, span := tracing.StartSpan(ctx, "workspace.Repository.UpdateStatus")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("workspaces")
	ub.Set(ub.Assign("status", status), ub.Assign("updated_at", time.Now().UTC()))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"workspace_id": id, "status": status}).Error("Failed to update workspace status")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update workspace status: %v", err)
	}
	return nil
}
