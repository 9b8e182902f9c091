package groups

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/banyan/pkg/database"
	"github.com/Ramsey-B/banyan/pkg/models"
)

const userID = "user-1"

type memStore struct {
	groups  map[string]*models.Group
	members []models.GroupMember
}

func newMemStore() *memStore {
	return &memStore{groups: make(map[string]*models.Group)}
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "group not found")
	}
	copied := *g
	return &copied, nil
}

func (m *memStore) Create(_ context.Context, g *models.Group) (*models.Group, error) {
	copied := *g
	m.groups[g.ID] = &copied
	return g, nil
}

func (m *memStore) Get(_ context.Context, groupID, userID string) (*models.GroupMember, error) {
	for _, member := range m.members {
		if member.GroupID == groupID && member.UserID == userID {
			return &member, nil
		}
	}
	return nil, httperror.NewHTTPError(http.StatusNotFound, "not a member")
}

func (m *memStore) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	for _, member := range m.members {
		if member.GroupID == groupID && member.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListByGroup(_ context.Context, groupID string) ([]models.GroupMember, error) {
	var out []models.GroupMember
	for _, member := range m.members {
		if member.GroupID == groupID {
			out = append(out, member)
		}
	}
	return out, nil
}

func (m *memStore) Add(_ context.Context, member *models.GroupMember) (*models.GroupMember, error) {
	for _, existing := range m.members {
		if existing.GroupID == member.GroupID && existing.UserID == member.UserID {
			return &existing, nil
		}
	}
	m.members = append(m.members, *member)
	return member, nil
}

func (m *memStore) Remove(_ context.Context, groupID, userID string) error {
	kept := m.members[:0]
	for _, member := range m.members {
		if member.GroupID != groupID || member.UserID != userID {
			kept = append(kept, member)
		}
	}
	m.members = kept
	return nil
}

func (m *memStore) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, memTx{}, nil
}

type memTx struct{}

func (t memTx) IsOpen() bool                     { return true }
func (t memTx) Commit(_ context.Context) error   { return nil }
func (t memTx) Rollback(_ context.Context) error { return nil }
func (t memTx) Rebind(query string) string       { return query }
func (t memTx) ExecContext(_ context.Context, _ string, _ ...any) (sql.Result, error) {
	return nil, nil
}
func (t memTx) GetContext(_ context.Context, _ any, _ string, _ ...any) error {
	return sql.ErrNoRows
}
func (t memTx) SelectContext(_ context.Context, _ any, _ string, _ ...any) error { return nil }
func (t memTx) QueryxContext(_ context.Context, _ string, _ ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (t memTx) NamedExecContext(_ context.Context, _ string, _ any) (sql.Result, error) {
	return nil, nil
}

func newTestService(store *memStore) *Service {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewService(logger, store, store, store)
}

func TestCreateStartsAtVersionZeroWithAdminMember(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)

	group, err := service.Create(context.Background(), userID, &models.CreateGroupRequest{Name: "hopper family"})
	require.NoError(t, err)

	assert.Equal(t, 0, group.Version)
	assert.Equal(t, userID, group.AdminID)

	member, err := store.Get(context.Background(), group.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, member.Role)
}

func TestGetRequiresMembership(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)
	group, _ := service.Create(context.Background(), userID, &models.CreateGroupRequest{Name: "hopper family"})

	_, err := service.Get(context.Background(), group.ID, "stranger")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
}

func TestJoinAddsRegularMember(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)
	group, _ := service.Create(context.Background(), userID, &models.CreateGroupRequest{Name: "hopper family"})

	member, err := service.Join(context.Background(), group.ID, "user-2")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, member.Role)

	// joining again is a no-op
	_, err = service.Join(context.Background(), group.ID, "user-2")
	require.NoError(t, err)
	members, _ := service.Members(context.Background(), group.ID, userID)
	assert.Len(t, members, 2)
}

func TestJoinUnknownGroupFails(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)

	_, err := service.Join(context.Background(), "missing", "user-2")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestAdminCannotLeave(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)
	group, _ := service.Create(context.Background(), userID, &models.CreateGroupRequest{Name: "hopper family"})

	err := service.Leave(context.Background(), group.ID, userID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestMemberCanLeave(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)
	group, _ := service.Create(context.Background(), userID, &models.CreateGroupRequest{Name: "hopper family"})
	_, err := service.Join(context.Background(), group.ID, "user-2")
	require.NoError(t, err)

	require.NoError(t, service.Leave(context.Background(), group.ID, "user-2"))

	members, err := service.Members(context.Background(), group.ID, userID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}
