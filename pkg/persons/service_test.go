package persons

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/banyan/pkg/database"
	"github.com/Ramsey-B/banyan/pkg/models"
)

const (
	groupID = "group-1"
	userID  = "user-1"
)

type memStore struct {
	persons map[string]*models.Person
	edges   []models.Relationship
	members map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		persons: make(map[string]*models.Person),
		members: map[string]bool{userID: true},
	}
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.Person, error) {
	p, ok := m.persons[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "person not found")
	}
	copied := *p
	return &copied, nil
}

func (m *memStore) ListByGroup(_ context.Context, groupID string) ([]models.Person, error) {
	var out []models.Person
	for _, p := range m.persons {
		if p.GroupID == groupID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) SearchByName(_ context.Context, groupID, name string) ([]models.Person, error) {
	var out []models.Person
	for _, p := range m.persons {
		if p.GroupID != groupID {
			continue
		}
		if strings.Contains(strings.ToLower(p.FirstName), strings.ToLower(name)) ||
			strings.Contains(strings.ToLower(p.LastName), strings.ToLower(name)) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, p *models.Person) (*models.Person, error) {
	copied := *p
	m.persons[p.ID] = &copied
	return p, nil
}

func (m *memStore) Update(_ context.Context, p *models.Person) (*models.Person, error) {
	copied := *p
	copied.Version = m.persons[p.ID].Version + 1
	m.persons[p.ID] = &copied
	return &copied, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	delete(m.persons, id)
	return nil
}

type relStore struct{ *memStore }

func (s relStore) ListByGroup(_ context.Context, _ string) ([]models.Relationship, error) {
	return s.edges, nil
}

func (s relStore) DeleteForPerson(_ context.Context, _, personID string) error {
	kept := s.memStore.edges[:0]
	for _, e := range s.memStore.edges {
		if e.FromPersonID != personID && e.ToPersonID != personID {
			kept = append(kept, e)
		}
	}
	s.memStore.edges = kept
	return nil
}

func (m *memStore) IsMember(_ context.Context, _, userID string) (bool, error) {
	return m.members[userID], nil
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

type recordingNotifier struct {
	created, updated, deleted int
}

func (n *recordingNotifier) PersonCreated(_ context.Context, _ *models.Person) { n.created++ }
func (n *recordingNotifier) PersonUpdated(_ context.Context, _ *models.Person) { n.updated++ }
func (n *recordingNotifier) PersonDeleted(_ context.Context, _ *models.Person) { n.deleted++ }

func newTestService(store *memStore, notifier *recordingNotifier) *Service {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewService(logger, store, store, relStore{store}, store, notifier)
}

func (m *memStore) seed(id string, gender models.Gender) {
	m.persons[id] = &models.Person{ID: id, GroupID: groupID, FirstName: id, Gender: gender}
}

func (m *memStore) addEdge(from, to string, relType models.RelationshipType) {
	m.edges = append(m.edges, models.Relationship{
		ID:           from + "-" + to,
		GroupID:      groupID,
		FromPersonID: from,
		ToPersonID:   to,
		Type:         relType,
	})
}

func strPtr(s string) *string { return &s }

func TestCreateStartsAtVersionZero(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	service := newTestService(store, notifier)

	person, err := service.Create(context.Background(), userID, &models.CreatePersonRequest{
		GroupID:   groupID,
		FirstName: "Ada",
		Gender:    models.GenderFemale,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, person.Version)
	assert.Equal(t, userID, person.CreatedBy)
	assert.Equal(t, 1, notifier.created)
}

func TestCreateRequiresMembership(t *testing.T) {
	store := newMemStore()
	service := newTestService(store, &recordingNotifier{})

	_, err := service.Create(context.Background(), "stranger", &models.CreatePersonRequest{
		GroupID:   groupID,
		FirstName: "Ada",
		Gender:    models.GenderFemale,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
}

func TestUpdateAppliesPartialPatch(t *testing.T) {
	store := newMemStore()
	store.seed("p1", models.GenderFemale)
	notifier := &recordingNotifier{}
	service := newTestService(store, notifier)

	updated, err := service.Update(context.Background(), "p1", userID, models.PersonPatch{
		LastName: strPtr("Lovelace"),
	})
	require.NoError(t, err)

	assert.Equal(t, "p1", updated.FirstName)
	assert.Equal(t, "Lovelace", updated.LastName)
	assert.Equal(t, 1, updated.Version)
	assert.Equal(t, 1, notifier.updated)
}

func TestUpdateRejectsEmptyPatch(t *testing.T) {
	store := newMemStore()
	store.seed("p1", models.GenderFemale)
	service := newTestService(store, &recordingNotifier{})

	_, err := service.Update(context.Background(), "p1", userID, models.PersonPatch{})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestDeleteCascadesEdges(t *testing.T) {
	store := newMemStore()
	store.seed("p1", models.GenderFemale)
	store.seed("p2", models.GenderMale)
	store.addEdge("p1", "p2", models.RelationshipSpouse)
	notifier := &recordingNotifier{}
	service := newTestService(store, notifier)

	require.NoError(t, service.Delete(context.Background(), "p1", userID))

	assert.NotContains(t, store.persons, "p1")
	assert.Empty(t, store.edges)
	assert.Equal(t, 1, notifier.deleted)
}

func TestSearchMatchesEitherName(t *testing.T) {
	store := newMemStore()
	store.persons["p1"] = &models.Person{ID: "p1", GroupID: groupID, FirstName: "Grace", LastName: "Hopper"}
	store.persons["p2"] = &models.Person{ID: "p2", GroupID: groupID, FirstName: "Ada", LastName: "Lovelace"}
	service := newTestService(store, &recordingNotifier{})

	found, err := service.Search(context.Background(), groupID, userID, "hopper")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "p1", found[0].ID)
}

func TestRelationsDerivesSiblingsThroughSharedParents(t *testing.T) {
	store := newMemStore()
	store.seed("parent", models.GenderMale)
	store.seed("focus", models.GenderFemale)
	store.seed("half-sibling", models.GenderMale)
	store.seed("spouse", models.GenderMale)
	store.addEdge("parent", "focus", models.RelationshipParent)
	store.addEdge("parent", "half-sibling", models.RelationshipParent)
	store.addEdge("focus", "spouse", models.RelationshipSpouse)
	service := newTestService(store, &recordingNotifier{})

	relations, err := service.Relations(context.Background(), "focus", userID)
	require.NoError(t, err)

	require.Len(t, relations.Parents, 1)
	assert.Equal(t, "parent", relations.Parents[0].ID)
	require.Len(t, relations.Siblings, 1)
	assert.Equal(t, "half-sibling", relations.Siblings[0].ID)
	require.Len(t, relations.Spouses, 1)
	assert.Equal(t, "spouse", relations.Spouses[0].ID)
	assert.Empty(t, relations.Children)
}
