package mergerequest

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

const mergeRequestColumns = "id, workspace_id, group_id, title, description, status, created_by, reviewed_by, review_comment, created_at, updated_at"

// Repository handles merge request persistence
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

// GetByID returns the merge request with the given id.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerequest.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(mergeRequestColumns)
	sb.From("merge_requests")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var mr models.MergeRequest
	if err := database.Resolve(ctx, r.db).GetContext(ctx, &mr, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "merge request %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"merge_request_id": id}).Error("Failed to get merge request")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get merge request: %v", err)
	}
	return &mr, nil
}

// ListByGroup returns the group's merge requests, newest first. Status filters
// the list when non-empty.
func (r *Repository) ListByGroup(ctx context.Context, groupID string, status models.MergeStatus) ([]models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerequest.Repository.ListByGroup")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(mergeRequestColumns)
	sb.From("merge_requests")
	where := []string{sb.Equal("group_id", groupID)}
	if status != "" {
		where = append(where, sb.Equal("status", status))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var requests []models.MergeRequest
	if err := database.Resolve(ctx, r.db).SelectContext(ctx, &requests, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID, "status": status}).Error("Failed to list merge requests")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list merge requests: %v", err)
	}
	return requests, nil
}

// Create inserts a new pending merge request.
func (r *Repository) Create(ctx context.Context, mr *models.MergeRequest) (*models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerequest.Repository.Create")
	defer span.End()

	if mr.ID == "" {
		mr.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	mr.CreatedAt = now
	mr.UpdatedAt = now

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("merge_requests")
	ib.Cols("id", "workspace_id", "group_id", "title", "description", "status", "created_by", "reviewed_by", "review_comment", "created_at", "updated_at")
	ib.Values(mr.ID, mr.WorkspaceID, mr.GroupID, mr.Title, mr.Description, mr.Status, mr.CreatedBy, mr.ReviewedBy, mr.ReviewComment, mr.CreatedAt, mr.UpdatedAt)

	query, args := ib.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"workspace_id": mr.WorkspaceID, "group_id": mr.GroupID}).Error("Failed to create merge request")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create merge request: %v", err)
	}
	return mr, nil
}

// UpdateReview records the reviewer's decision.
func (r *Repository) UpdateReview(ctx context.Context, id string, status models.MergeStatus, reviewedBy string, comment *string) error {
	ctx, span := tracing.StartSpan(ctx, "mergerequest.Repository.UpdateReview")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("merge_requests")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("reviewed_by", reviewedBy),
		ub.Assign("review_comment", comment),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"merge_request_id": id, "status": status}).Error("Failed to update merge request review")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update merge request: %v", err)
	}
	return nil
}
