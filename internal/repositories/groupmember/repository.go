package groupmember

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

// Repository handles group membership persistence
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

// Get returns the membership row for (group, user), or a 404 error.
func (r *Repository) Get(ctx context.Context, groupID, userID string) (*models.GroupMember, error) {
	ctx, span := tracing.StartSpan(ctx, "groupmember.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "group_id", "user_id", "role", "joined_at")
	sb.From("group_members")
	sb.Where(sb.Equal("group_id", groupID), sb.Equal("user_id", userID))

	query, args := sb.Build()
	var m models.GroupMember
	if err := database.Resolve(ctx, r.db).GetContext(ctx, &m, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "user %s is not a member of group %s", userID, groupID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID, "user_id": userID}).Error("Failed to get group member")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get group member: %v", err)
	}
	return &m, nil
}

// IsMember reports whether the user belongs to the group.
func (r *Repository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "groupmember.Repository.IsMember")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("group_members")
	sb.Where(sb.Equal("group_id", groupID), sb.Equal("user_id", userID))

	query, args := sb.Build()
	var count int
	if err := database.Resolve(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID, "user_id": userID}).Error("Failed to check group membership")
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to check group membership: %v", err)
	}
	return count > 0, nil
}

// ListByGroup returns the group's members ordered by join time.
func (r *Repository) ListByGroup(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	ctx, span := tracing.StartSpan(ctx, "groupmember.Repository.ListByGroup")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "group_id", "user_id", "role", "joined_at")
	sb.From("group_members")
	sb.Where(sb.Equal("group_id", groupID))
	sb.OrderBy("joined_at ASC")

	query, args := sb.Build()
	var members []models.GroupMember
	if err := database.Resolve(ctx, r.db).SelectContext(ctx, &members, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID}).Error("Failed to list group members")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list group members: %v", err)
	}
	return members, nil
}

// Add inserts a membership. Joining twice is a no-op.
func (r *Repository) Add(ctx context.Context, m *models.GroupMember) (*models.GroupMember, error) {
	ctx, span := tracing.StartSpan(ctx, "groupmember.Repository.Add")
	defer span.End()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.JoinedAt = time.Now().UTC()

	ib := database.NewInsertBuilder()
	ib.InsertInto("group_members")
	ib.Cols("id", "group_id", "user_id", "role", "joined_at")
	ib.Values(m.ID, m.GroupID, m.UserID, m.Role, m.JoinedAt)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": m.GroupID, "user_id": m.UserID}).Error("Failed to add group member")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to add group member: %v", err)
	}
	return m, nil
}

// Remove deletes a membership.
func (r *Repository) Remove(ctx context.Context, groupID, userID string) error {
	ctx, span := tracing.StartSpan(ctx, "groupmember.Repository.Remove")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("group_members")
	db.Where(db.Equal("group_id", groupID), db.Equal("user_id", userID))

	query, args := db.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID, "user_id": userID}).Error("Failed to remove group member")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to remove group member: %v", err)
	}
	return nil
}
