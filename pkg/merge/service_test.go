package merge

import (
	"context"
	"database/sql"
	"encoding/json"
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

const (
	groupID     = "group-1"
	workspaceID = "ws-1"
	requestID   = "mr-1"
	authorID    = "user-1"
	reviewerID  = "user-2"
)

type memStore struct {
	group         *models.Group
	members       map[string]bool
	workspace     *models.Workspace
	changesets    []models.ChangeSet
	persons       map[string]*models.Person
	mergeRequest  *models.MergeRequest
	deletedEdges  []string
	txCommits     int
	txRollbacks   int
	lockFetches   int
	failOnCreate  bool
	createdPeople []string
	onLock        func()
}

func newMemStore() *memStore {
	return &memStore{
		group:   &models.Group{ID: groupID, Version: 0},
		members: map[string]bool{authorID: true, reviewerID: true},
		workspace: &models.Workspace{
			ID:          workspaceID,
			GroupID:     groupID,
			UserID:      authorID,
			BaseVersion: 0,
			Status:      models.WorkspaceSubmitted,
		},
		persons: make(map[string]*models.Person),
		mergeRequest: &models.MergeRequest{
			ID:          requestID,
			WorkspaceID: workspaceID,
			GroupID:     groupID,
			Title:       "draft",
			Status:      models.MergePending,
			CreatedBy:   authorID,
		},
	}
}

func (m *memStore) IsMember(_ context.Context, _, userID string) (bool, error) {
	return m.members[userID], nil
}

type mrStore struct{ *memStore }

func (s mrStore) GetByID(_ context.Context, id string) (*models.MergeRequest, error) {
	if s.mergeRequest == nil || s.mergeRequest.ID != id {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "merge request not found")
	}
	copied := *s.mergeRequest
	return &copied, nil
}

func (s mrStore) ListByGroup(_ context.Context, _ string, status models.MergeStatus) ([]models.MergeRequest, error) {
	if status != "" && s.mergeRequest.Status != status {
		return nil, nil
	}
	return []models.MergeRequest{*s.mergeRequest}, nil
}

func (s mrStore) UpdateReview(_ context.Context, _ string, status models.MergeStatus, reviewedBy string, comment *string) error {
	s.mergeRequest.Status = status
	s.mergeRequest.ReviewedBy = &reviewedBy
	s.mergeRequest.ReviewComment = comment
	return nil
}

type wsStore struct{ *memStore }

func (s wsStore) GetByID(_ context.Context, _ string) (*models.Workspace, error) {
	copied := *s.workspace
	return &copied, nil
}

func (s wsStore) UpdateStatus(_ context.Context, _ string, status models.WorkspaceStatus) error {
	s.workspace.Status = status
	return nil
}

type groupStore struct{ *memStore }

func (s groupStore) GetByID(_ context.Context, _ string) (*models.Group, error) {
	copied := *s.group
	return &copied, nil
}

func (s groupStore) GetByIDForUpdate(_ context.Context, _ string) (*models.Group, error) {
	s.memStore.lockFetches++
	if s.memStore.onLock != nil {
		s.memStore.onLock()
	}
	copied := *s.group
	return &copied, nil
}

func (s groupStore) IncrementVersion(_ context.Context, _ string) (int, error) {
	s.group.Version++
	return s.group.Version, nil
}

type csStore struct{ *memStore }

func (s csStore) ListByWorkspace(_ context.Context, _ string) ([]models.ChangeSet, error) {
	return s.changesets, nil
}

type personStore struct{ *memStore }

func (s personStore) GetByID(_ context.Context, id string) (*models.Person, error) {
	p, ok := s.persons[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "person not found")
	}
	copied := *p
	return &copied, nil
}

func (s personStore) Create(_ context.Context, p *models.Person) (*models.Person, error) {
	if s.failOnCreate {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "insert failed")
	}
	copied := *p
	s.persons[p.ID] = &copied
	s.memStore.createdPeople = append(s.memStore.createdPeople, p.ID)
	return p, nil
}

func (s personStore) Update(_ context.Context, p *models.Person) (*models.Person, error) {
	copied := *p
	copied.Version = s.persons[p.ID].Version + 1
	s.persons[p.ID] = &copied
	return &copied, nil
}

func (s personStore) Delete(_ context.Context, id string) error {
	delete(s.persons, id)
	return nil
}

type relStore struct{ *memStore }

func (s relStore) DeleteForPerson(_ context.Context, _, personID string) error {
	s.memStore.deletedEdges = append(s.memStore.deletedEdges, personID)
	return nil
}

type memDB struct{ *memStore }

func (d memDB) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, memTx{d.memStore}, nil
}

type memTx struct{ store *memStore }

func (t memTx) IsOpen() bool { return true }
func (t memTx) Commit(_ context.Context) error {
	t.store.txCommits++
	return nil
}
func (t memTx) Rollback(_ context.Context) error {
	t.store.txRollbacks++
	return nil
}
func (t memTx) Rebind(query string) string { return query }
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
	merged     int
	conflicted int
	rejected   int
}

func (n *recordingNotifier) GraphMerged(_ context.Context, _ *models.MergeRequest, _ int) {
	n.merged++
}

func (n *recordingNotifier) MergeConflicted(_ context.Context, _ *models.MergeRequest, _ []models.Conflict) {
	n.conflicted++
}

func (n *recordingNotifier) MergeRejected(_ context.Context, _ *models.MergeRequest) {
	n.rejected++
}

func newTestService(store *memStore, notifier *recordingNotifier) *Service {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewService(
		logger,
		memDB{store},
		mrStore{store},
		wsStore{store},
		groupStore{store},
		csStore{store},
		personStore{store},
		relStore{store},
		store,
		notifier,
	)
}

func (m *memStore) stage(action models.ActionType, entityID string, payload interface{}) {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	m.changesets = append(m.changesets, models.ChangeSet{
		ID:             entityID + "-cs",
		WorkspaceID:    workspaceID,
		ActionType:     action,
		EntityType:     models.EntityPerson,
		EntityID:       entityID,
		Payload:        raw,
		SequenceNumber: len(m.changesets) + 1,
	})
}

func strPtr(s string) *string { return &s }

func TestApproveHappyPathMergesAndBumpsGroupVersion(t *testing.T) {
	store := newMemStore()
	store.stage(models.ActionCreate, "new-person", models.PersonPayload{
		FirstName: "Ada",
		Gender:    models.GenderFemale,
	})
	notifier := &recordingNotifier{}
	service := newTestService(store, notifier)

	result, err := service.Approve(context.Background(), requestID, reviewerID)
	require.NoError(t, err)

	assert.Equal(t, models.MergeApproved, result.Status)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, 1, result.GroupVersion)
	assert.Equal(t, 1, store.group.Version)

	created := store.persons["new-person"]
	require.NotNil(t, created)
	assert.Equal(t, "Ada", created.FirstName)
	assert.Equal(t, 0, created.Version)
	assert.Equal(t, authorID, created.CreatedBy)

	assert.Equal(t, models.MergeApproved, store.mergeRequest.Status)
	assert.Equal(t, reviewerID, *store.mergeRequest.ReviewedBy)
	assert.Equal(t, models.WorkspaceMerged, store.workspace.Status)
	assert.Equal(t, 1, store.txCommits)
	assert.Equal(t, 1, store.lockFetches)
	assert.Equal(t, 1, notifier.merged)
}

func TestApproveReplaysUpdatesAsPartialPatches(t *testing.T) {
	store := newMemStore()
	store.persons["p1"] = &models.Person{ID: "p1", GroupID: groupID, FirstName: "Grace", LastName: "Murray", Version: 0}
	store.stage(models.ActionUpdate, "p1", models.PersonPatch{LastName: strPtr("Hopper")})
	service := newTestService(store, &recordingNotifier{})

	result, err := service.Approve(context.Background(), requestID, reviewerID)
	require.NoError(t, err)
	assert.Equal(t, models.MergeApproved, result.Status)

	updated := store.persons["p1"]
	assert.Equal(t, "Grace", updated.FirstName)
	assert.Equal(t, "Hopper", updated.LastName)
	assert.Equal(t, 1, updated.Version)
}

func TestApproveReplaysDeletesWithEdges(t *testing.T) {
	store := newMemStore()
	store.persons["p1"] = &models.Person{ID: "p1", GroupID: groupID, FirstName: "Grace", Version: 0}
	store.stage(models.ActionDelete, "p1", nil)
	service := newTestService(store, &recordingNotifier{})

	_, err := service.Approve(context.Background(), requestID, reviewerID)
	require.NoError(t, err)

	assert.NotContains(t, store.persons, "p1")
	assert.Equal(t, []string{"p1"}, store.deletedEdges)
}

func TestApproveConflictAppliesNothing(t *testing.T) {
	store := newMemStore()
	// the group moved on and p1 itself was re-saved since the branch point
	store.group.Version = 2
	store.persons["p1"] = &models.Person{ID: "p1", GroupID: groupID, FirstName: "Grace", Version: 2}
	store.stage(models.ActionUpdate, "p1", models.PersonPatch{LastName: strPtr("Hopper")})
	notifier := &recordingNotifier{}
	service := newTestService(store, notifier)

	result, err := service.Approve(context.Background(), requestID, reviewerID)
	require.NoError(t, err)

	assert.Equal(t, models.MergeConflict, result.Status)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "p1", result.Conflicts[0].PersonID)
	assert.Equal(t, 0, result.Conflicts[0].BaseVersion)
	assert.Equal(t, 2, result.Conflicts[0].CurrentVersion)

	// nothing was applied
	assert.Equal(t, "Grace", store.persons["p1"].FirstName)
	assert.Empty(t, store.persons["p1"].LastName)
	assert.Equal(t, 2, store.group.Version)
	assert.Equal(t, 0, store.txCommits)

	assert.Equal(t, models.MergeConflict, store.mergeRequest.Status)
	assert.Equal(t, models.WorkspaceConflict, store.workspace.Status)
	assert.Equal(t, 1, notifier.conflicted)
}

func TestApproveProceedsWhenGroupAdvancedForUnrelatedEntities(t *testing.T) {
	store := newMemStore()
	store.group.Version = 3
	store.persons["p1"] = &models.Person{ID: "p1", GroupID: groupID, FirstName: "Grace", Version: 0}
	store.stage(models.ActionUpdate, "p1", models.PersonPatch{LastName: strPtr("Hopper")})
	service := newTestService(store, &recordingNotifier{})

	result, err := service.Approve(context.Background(), requestID, reviewerID)
	require.NoError(t, err)

	assert.Equal(t, models.MergeApproved, result.Status)
	assert.Equal(t, 4, result.GroupVersion)
	assert.Equal(t, "Hopper", store.persons["p1"].LastName)
}

func TestApproveSkipsConflictCheckForWorkspaceCreatedPersons(t *testing.T) {
	store := newMemStore()
	store.group.Version = 1
	store.stage(models.ActionCreate, "new-person", models.PersonPayload{FirstName: "Ada", Gender: models.GenderFemale})
	store.stage(models.ActionUpdate, "new-person", models.PersonPatch{LastName: strPtr("Lovelace")})
	service := newTestService(store, &recordingNotifier{})

	result, err := service.Approve(context.Background(), requestID, reviewerID)
	require.NoError(t, err)

	assert.Equal(t, models.MergeApproved, result.Status)
	assert.Equal(t, "Lovelace", store.persons["new-person"].LastName)
}

func TestApproveNonPendingFails(t *testing.T) {
	store := newMemStore()
	store.mergeRequest.Status = models.MergeApproved
	service := newTestService(store, &recordingNotifier{})

	_, err := service.Approve(context.Background(), requestID, reviewerID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestApproveRequiresMembership(t *testing.T) {
	store := newMemStore()
	service := newTestService(store, &recordingNotifier{})

	_, err := service.Approve(context.Background(), requestID, "stranger")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
}

func TestApproveRefusesRequestSettledWhileWaitingForLock(t *testing.T) {
	store := newMemStore()
	store.stage(models.ActionCreate, "new-person", models.PersonPayload{FirstName: "Ada"})
	// another reviewer wins the group lock and merges first
	store.onLock = func() {
		store.mergeRequest.Status = models.MergeApproved
		store.group.Version = 1
	}
	notifier := &recordingNotifier{}
	service := newTestService(store, notifier)

	_, err := service.Approve(context.Background(), requestID, reviewerID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	assert.Equal(t, 0, store.txCommits)
	assert.Empty(t, store.createdPeople)
	assert.Equal(t, 1, store.group.Version)
	assert.Equal(t, 0, notifier.merged)
}

func TestApproveRollsBackOnReplayFailure(t *testing.T) {
	store := newMemStore()
	store.failOnCreate = true
	store.stage(models.ActionCreate, "new-person", models.PersonPayload{FirstName: "Ada"})
	service := newTestService(store, &recordingNotifier{})

	_, err := service.Approve(context.Background(), requestID, reviewerID)
	require.Error(t, err)

	assert.Equal(t, 0, store.txCommits)
	assert.Equal(t, 1, store.txRollbacks)
	assert.Equal(t, 0, store.group.Version)
}

func TestRejectReturnsWorkspaceToEditing(t *testing.T) {
	store := newMemStore()
	store.stage(models.ActionCreate, "new-person", models.PersonPayload{FirstName: "Ada"})
	notifier := &recordingNotifier{}
	service := newTestService(store, notifier)

	mr, err := service.Reject(context.Background(), requestID, reviewerID, &models.RejectRequest{
		Comment: "needs birth dates",
	})
	require.NoError(t, err)

	assert.Equal(t, models.MergeRejected, mr.Status)
	assert.Equal(t, "needs birth dates", *mr.ReviewComment)
	assert.Equal(t, reviewerID, *mr.ReviewedBy)
	assert.Equal(t, models.WorkspaceEditing, store.workspace.Status)

	// the change log survives rejection so the author can revise and recommit
	assert.Len(t, store.changesets, 1)
	assert.Equal(t, 1, notifier.rejected)
}

func TestRejectNonPendingFails(t *testing.T) {
	store := newMemStore()
	store.mergeRequest.Status = models.MergeRejected
	service := newTestService(store, &recordingNotifier{})

	_, err := service.Reject(context.Background(), requestID, reviewerID, &models.RejectRequest{Comment: "no"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestGetRequiresMembership(t *testing.T) {
	store := newMemStore()
	service := newTestService(store, &recordingNotifier{})

	_, err := service.Get(context.Background(), requestID, "stranger")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
}
