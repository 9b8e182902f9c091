package workspace

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/banyan/pkg/models"
)

const (
	groupID = "group-1"
	userID  = "user-1"
)

type memStore struct {
	group         *models.Group
	members       map[string]bool
	workspaces    map[string]*models.Workspace
	changesets    []models.ChangeSet
	persons       map[string]*models.Person
	mergeRequests []*models.MergeRequest
}

func newMemStore() *memStore {
	return &memStore{
		group:      &models.Group{ID: groupID, Version: 7},
		members:    map[string]bool{userID: true},
		workspaces: make(map[string]*models.Workspace),
		persons:    make(map[string]*models.Person),
	}
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.Group, error) {
	return m.group, nil
}

func (m *memStore) IsMember(_ context.Context, _, userID string) (bool, error) {
	return m.members[userID], nil
}

type wsStore struct{ *memStore }

func (s wsStore) GetByID(_ context.Context, id string) (*models.Workspace, error) {
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "workspace not found")
	}
	copied := *ws
	return &copied, nil
}

func (s wsStore) FindByGroupAndUser(_ context.Context, groupID, userID string) (*models.Workspace, error) {
	for _, ws := range s.workspaces {
		if ws.GroupID == groupID && ws.UserID == userID &&
			(ws.Status == models.WorkspaceEditing || ws.Status == models.WorkspaceConflict) {
			copied := *ws
			return &copied, nil
		}
	}
	return nil, nil
}

func (s wsStore) Create(_ context.Context, ws *models.Workspace) (*models.Workspace, error) {
	copied := *ws
	s.workspaces[ws.ID] = &copied
	return ws, nil
}

func (s wsStore) UpdateStatus(_ context.Context, id string, status models.WorkspaceStatus) error {
	s.workspaces[id].Status = status
	return nil
}

type csStore struct{ *memStore }

func (s csStore) ListByWorkspace(_ context.Context, workspaceID string) ([]models.ChangeSet, error) {
	var out []models.ChangeSet
	for _, cs := range s.changesets {
		if cs.WorkspaceID == workspaceID {
			out = append(out, cs)
		}
	}
	return out, nil
}

func (s csStore) ListByWorkspaceAndEntity(_ context.Context, workspaceID, entityID string) ([]models.ChangeSet, error) {
	var out []models.ChangeSet
	for _, cs := range s.changesets {
		if cs.WorkspaceID == workspaceID && cs.EntityID == entityID {
			out = append(out, cs)
		}
	}
	return out, nil
}

func (s csStore) MaxSequence(_ context.Context, workspaceID string) (int, error) {
	max := 0
	for _, cs := range s.changesets {
		if cs.WorkspaceID == workspaceID && cs.SequenceNumber > max {
			max = cs.SequenceNumber
		}
	}
	return max, nil
}

func (s csStore) Create(_ context.Context, cs *models.ChangeSet) (*models.ChangeSet, error) {
	s.memStore.changesets = append(s.memStore.changesets, *cs)
	return cs, nil
}

func (s csStore) DeleteByWorkspace(_ context.Context, workspaceID string) error {
	kept := s.memStore.changesets[:0]
	for _, cs := range s.memStore.changesets {
		if cs.WorkspaceID != workspaceID {
			kept = append(kept, cs)
		}
	}
	s.memStore.changesets = kept
	return nil
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

type mrStore struct{ *memStore }

func (s mrStore) Create(_ context.Context, mr *models.MergeRequest) (*models.MergeRequest, error) {
	s.memStore.mergeRequests = append(s.memStore.mergeRequests, mr)
	return mr, nil
}

func newTestService(store *memStore) *Service {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewService(logger, store, store, wsStore{store}, csStore{store}, personStore{store}, mrStore{store})
}

func strPtr(s string) *string { return &s }

func TestCreateOrGetPinsBaseVersion(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)

	ws, err := service.CreateOrGet(context.Background(), groupID, userID)
	require.NoError(t, err)

	assert.Equal(t, 7, ws.BaseVersion)
	assert.Equal(t, models.WorkspaceEditing, ws.Status)
}

func TestCreateOrGetReusesOpenWorkspace(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)

	first, err := service.CreateOrGet(context.Background(), groupID, userID)
	require.NoError(t, err)
	second, err := service.CreateOrGet(context.Background(), groupID, userID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestCreateOrGetRequiresMembership(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)

	_, err := service.CreateOrGet(context.Background(), groupID, "stranger")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
}

func TestStagePersonCreateMintsEntityID(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)
	ws, _ := service.CreateOrGet(context.Background(), groupID, userID)

	cs, err := service.StagePersonCreate(context.Background(), ws.ID, userID, &models.StagePersonRequest{
		FirstName: "Ada",
		Gender:    models.GenderFemale,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, cs.EntityID)
	assert.Equal(t, models.ActionCreate, cs.ActionType)
	assert.Equal(t, 1, cs.SequenceNumber)

	payload, err := cs.CreatePayload()
	require.NoError(t, err)
	assert.Equal(t, "Ada", payload.FirstName)
}

func TestStagePersonUpdateCapturesEffectivePreImage(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)
	ws, _ := service.CreateOrGet(context.Background(), groupID, userID)

	created, err := service.StagePersonCreate(context.Background(), ws.ID, userID, &models.StagePersonRequest{
		FirstName: "Ada",
		Gender:    models.GenderFemale,
	})
	require.NoError(t, err)

	first, err := service.StagePersonUpdate(context.Background(), ws.ID, userID, created.EntityID, models.PersonPatch{
		LastName: strPtr("Lovelace"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, first.SequenceNumber)

	// the second update must see the first one in its pre-image
	second, err := service.StagePersonUpdate(context.Background(), ws.ID, userID, created.EntityID, models.PersonPatch{
		FirstName: strPtr("Augusta"),
	})
	require.NoError(t, err)

	var previous models.PersonPayload
	require.NoError(t, json.Unmarshal(second.PreviousPayload, &previous))
	assert.Equal(t, "Ada", previous.FirstName)
	assert.Equal(t, "Lovelace", previous.LastName)
}

func TestStagePersonUpdateFallsBackToPersistedRow(t *testing.T) {
	store := newMemStore()
	store.persons["p1"] = &models.Person{ID: "p1", GroupID: groupID, FirstName: "Grace", Version: 4}
	service := newTestService(store)
	ws, _ := service.CreateOrGet(context.Background(), groupID, userID)

	cs, err := service.StagePersonUpdate(context.Background(), ws.ID, userID, "p1", models.PersonPatch{
		LastName: strPtr("Hopper"),
	})
	require.NoError(t, err)

	var previous models.PersonPayload
	require.NoError(t, json.Unmarshal(cs.PreviousPayload, &previous))
	assert.Equal(t, "Grace", previous.FirstName)
}

func TestStagePersonUpdateUnknownPersonReturnsNotFound(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)
	ws, _ := service.CreateOrGet(context.Background(), groupID, userID)

	_, err := service.StagePersonUpdate(context.Background(), ws.ID, userID, "ghost", models.PersonPatch{
		LastName: strPtr("Nobody"),
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestStagePersonUpdateRejectsEmptyPatch(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)
	ws, _ := service.CreateOrGet(context.Background(), groupID, userID)

	_, err := service.StagePersonUpdate(context.Background(), ws.ID, userID, "p1", models.PersonPatch{})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestStageAfterDeleteIsRejected(t *testing.T) {
	store := newMemStore()
	store.persons["p1"] = &models.Person{ID: "p1", GroupID: groupID, FirstName: "Grace", Version: 4}
	service := newTestService(store)
	ws, _ := service.CreateOrGet(context.Background(), groupID, userID)

	_, err := service.StagePersonDelete(context.Background(), ws.ID, userID, "p1")
	require.NoError(t, err)

	_, err = service.StagePersonUpdate(context.Background(), ws.ID, userID, "p1", models.PersonPatch{
		LastName: strPtr("Hopper"),
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestStagingRequiresOwnership(t *testing.T) {
	store := newMemStore()
	store.members["user-2"] = true
	service := newTestService(store)
	ws, _ := service.CreateOrGet(context.Background(), groupID, userID)

	_, err := service.StagePersonCreate(context.Background(), ws.ID, "user-2", &models.StagePersonRequest{
		FirstName: "Ada",
		Gender:    models.GenderFemale,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
}

func TestCommitEmptyWorkspaceFails(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)
	ws, _ := service.CreateOrGet(context.Background(), groupID, userID)

	_, err := service.Commit(context.Background(), ws.ID, userID, &models.CommitRequest{Title: "empty"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestCommitOpensPendingMergeRequest(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)
	ws, _ := service.CreateOrGet(context.Background(), groupID, userID)

	_, err := service.StagePersonCreate(context.Background(), ws.ID, userID, &models.StagePersonRequest{
		FirstName: "Ada",
		Gender:    models.GenderFemale,
	})
	require.NoError(t, err)

	mr, err := service.Commit(context.Background(), ws.ID, userID, &models.CommitRequest{
		Title:       "add ada",
		Description: strPtr("first draft"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.MergePending, mr.Status)
	assert.Equal(t, ws.ID, mr.WorkspaceID)
	assert.Equal(t, userID, mr.CreatedBy)

	updated, err := service.Get(context.Background(), ws.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkspaceSubmitted, updated.Status)
}

func TestCommittedWorkspaceRejectsFurtherStaging(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)
	ws, _ := service.CreateOrGet(context.Background(), groupID, userID)

	_, err := service.StagePersonCreate(context.Background(), ws.ID, userID, &models.StagePersonRequest{
		FirstName: "Ada",
		Gender:    models.GenderFemale,
	})
	require.NoError(t, err)
	_, err = service.Commit(context.Background(), ws.ID, userID, &models.CommitRequest{Title: "add ada"})
	require.NoError(t, err)

	_, err = service.StagePersonCreate(context.Background(), ws.ID, userID, &models.StagePersonRequest{
		FirstName: "Alan",
		Gender:    models.GenderMale,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestResetClearsLogAndReopens(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)
	ws, _ := service.CreateOrGet(context.Background(), groupID, userID)

	_, err := service.StagePersonCreate(context.Background(), ws.ID, userID, &models.StagePersonRequest{
		FirstName: "Ada",
		Gender:    models.GenderFemale,
	})
	require.NoError(t, err)

	store.workspaces[ws.ID].Status = models.WorkspaceConflict

	reopened, err := service.Reset(context.Background(), ws.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkspaceEditing, reopened.Status)

	changes, err := service.Changes(context.Background(), ws.ID, userID)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

