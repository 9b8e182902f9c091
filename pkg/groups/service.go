// Package groups manages group lifecycle and membership.
package groups

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/banyan/pkg/database"
	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/tracing"
)

type GroupStore interface {
	GetByID(ctx context.Context, id string) (*models.Group, error)
	Create(ctx context.Context, g *models.Group) (*models.Group, error)
}

type MemberStore interface {
	Get(ctx context.Context, groupID, userID string) (*models.GroupMember, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.GroupMember, error)
	Add(ctx context.Context, m *models.GroupMember) (*models.GroupMember, error)
	Remove(ctx context.Context, groupID, userID string) error
}

type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

type Service struct {
	logger  ectologger.Logger
	db      TxBeginner
	groups  GroupStore
	members MemberStore
}

func NewService(logger ectologger.Logger, db TxBeginner, groups GroupStore, members MemberStore) *Service {
	return &Service{
		logger:  logger,
		db:      db,
		groups:  groups,
		members: members,
	}
}

// Create makes a new group at version 0 with the creator as its admin member.
func (s *Service) Create(ctx context.Context, userID string, req *models.CreateGroupRequest) (*models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "groups.Service.Create")
	defer span.End()

	ctx, tx, err := s.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	group := &models.Group{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		AdminID:     userID,
		Version:     0,
	}
	created, err := s.groups.Create(ctx, group)
	if err != nil {
		return nil, err
	}

	_, err = s.members.Add(ctx, &models.GroupMember{
		ID:      uuid.New().String(),
		GroupID: created.ID,
		UserID:  userID,
		Role:    models.RoleAdmin,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"group_id": created.ID,
		"admin_id": userID,
	}).Info("group created")

	return created, nil
}

// Get returns a group the caller belongs to.
func (s *Service) Get(ctx context.Context, groupID, userID string) (*models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "groups.Service.Get")
	defer span.End()

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	isMember, err := s.members.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "not a member of this group")
	}
	return group, nil
}

// Join adds the user as a regular member. Joining twice is a no-op.
func (s *Service) Join(ctx context.Context, groupID, userID string) (*models.GroupMember, error) {
	ctx, span := tracing.StartSpan(ctx, "groups.Service.Join")
	defer span.End()

	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		return nil, err
	}

	return s.members.Add(ctx, &models.GroupMember{
		ID:      uuid.New().String(),
		GroupID: groupID,
		UserID:  userID,
		Role:    models.RoleMember,
	})
}

// Leave removes the user from the group. The admin cannot leave; the group
// would be ownerless.
func (s *Service) Leave(ctx context.Context, groupID, userID string) error {
	ctx, span := tracing.StartSpan(ctx, "groups.Service.Leave")
	defer span.End()

	member, err := s.members.Get(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if member.Role == models.RoleAdmin {
		return httperror.NewHTTPError(http.StatusConflict, "the group admin cannot leave the group")
	}
	return s.members.Remove(ctx, groupID, userID)
}

// Members lists the group's membership, visible to members only.
func (s *Service) Members(ctx context.Context, groupID, userID string) ([]models.GroupMember, error) {
	ctx, span := tracing.StartSpan(ctx, "groups.Service.Members")
	defer span.End()

	isMember, err := s.members.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "not a member of this group")
	}
	return s.members.ListByGroup(ctx, groupID)
}
