// Package merge reviews committed workspaces: approving one replays its
// changeset log onto the live graph atomically, rejecting one sends it back
// for revision. Version conflicts are reported as data, never as errors.
package merge

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/banyan/pkg/database"
	"github.com/Ramsey-B/banyan/pkg/metrics"
	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/tracing"
)

type MergeRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.MergeRequest, error)
	ListByGroup(ctx context.Context, groupID string, status models.MergeStatus) ([]models.MergeRequest, error)
	UpdateReview(ctx context.Context, id string, status models.MergeStatus, reviewedBy string, comment *string) error
}

type WorkspaceStore interface {
	GetByID(ctx context.Context, id string) (*models.Workspace, error)
	UpdateStatus(ctx context.Context, id string, status models.WorkspaceStatus) error
}

type GroupStore interface {
	GetByID(ctx context.Context, id string) (*models.Group, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Group, error)
	IncrementVersion(ctx context.Context, id string) (int, error)
}

type ChangeSetStore interface {
	ListByWorkspace(ctx context.Context, workspaceID string) ([]models.ChangeSet, error)
}

type PersonStore interface {
	GetByID(ctx context.Context, id string) (*models.Person, error)
	Create(ctx context.Context, p *models.Person) (*models.Person, error)
	Update(ctx context.Context, p *models.Person) (*models.Person, error)
	Delete(ctx context.Context, id string) error
}

type RelationshipStore interface {
	DeleteForPerson(ctx context.Context, groupID, personID string) error
}

type MembershipStore interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Notifier receives review outcomes after they are durable. Implementations
// must not fail the review; errors are theirs to log.
type Notifier interface {
	GraphMerged(ctx context.Context, mr *models.MergeRequest, groupVersion int)
	MergeConflicted(ctx context.Context, mr *models.MergeRequest, conflicts []models.Conflict)
	MergeRejected(ctx context.Context, mr *models.MergeRequest)
}

// Service coordinates merge request review.
type Service struct {
	logger        ectologger.Logger
	db            TxBeginner
	mergeRequests MergeRequestStore
	workspaces    WorkspaceStore
	groups        GroupStore
	changesets    ChangeSetStore
	persons       PersonStore
	relationships RelationshipStore
	members       MembershipStore
	notifier      Notifier
}

func NewService(
	logger ectologger.Logger,
	db TxBeginner,
	mergeRequests MergeRequestStore,
	workspaces WorkspaceStore,
	groups GroupStore,
	changesets ChangeSetStore,
	persons PersonStore,
	relationships RelationshipStore,
	members MembershipStore,
	notifier Notifier,
) *Service {
	return &Service{
		logger:        logger,
		db:            db,
		mergeRequests: mergeRequests,
		workspaces:    workspaces,
		groups:        groups,
		changesets:    changesets,
		persons:       persons,
		relationships: relationships,
		members:       members,
		notifier:      notifier,
	}
}

// Get returns a merge request visible to the caller.
func (s *Service) Get(ctx context.Context, mergeRequestID, userID string) (*models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Service.Get")
	defer span.End()

	mr, err := s.mergeRequests.GetByID(ctx, mergeRequestID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, mr.GroupID, userID); err != nil {
		return nil, err
	}
	return mr, nil
}

// ListByGroup returns the group's merge requests, optionally filtered by
// status, newest first.
func (s *Service) ListByGroup(ctx context.Context, groupID, userID string, status models.MergeStatus) ([]models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Service.ListByGroup")
	defer span.End()

	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	return s.mergeRequests.ListByGroup(ctx, groupID, status)
}

// Approve replays the workspace's changeset log onto the live graph. The
// group row is locked for the duration, so concurrent approvals for the same
// group serialize. When the group moved past the workspace's base version,
// UPDATE targets whose live version advanced are reported as conflicts and
// nothing is applied.
func (s *Service) Approve(ctx context.Context, mergeRequestID, reviewerID string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Service.Approve")
	defer span.End()

	mr, err := s.mergeRequests.GetByID(ctx, mergeRequestID)
	if err != nil {
		return nil, err
	}
	if mr.Status != models.MergePending {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "merge request is %s and cannot be approved", mr.Status)
	}
	if err := s.requireMember(ctx, mr.GroupID, reviewerID); err != nil {
		return nil, err
	}

	ws, err := s.workspaces.GetByID(ctx, mr.WorkspaceID)
	if err != nil {
		return nil, err
	}
	changes, err := s.changesets.ListByWorkspace(ctx, ws.ID)
	if err != nil {
		return nil, err
	}

	ctx, tx, err := s.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	group, err := s.groups.GetByIDForUpdate(ctx, mr.GroupID)
	if err != nil {
		return nil, err
	}

	// a concurrent reviewer may have settled the request while we waited on
	// the lock; replaying the log twice would bump versions twice
	mr, err = s.mergeRequests.GetByID(ctx, mergeRequestID)
	if err != nil {
		return nil, err
	}
	if mr.Status != models.MergePending {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "merge request is %s and cannot be approved", mr.Status)
	}

	if group.Version != ws.BaseVersion {
		conflicts, err := s.detectConflicts(ctx, ws, changes)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			// release the group lock; the conflict bookkeeping happens
			// outside the merge transaction
			tx.Rollback(ctx)
			return s.markConflicted(ctx, mr, ws, group, reviewerID, conflicts)
		}
		// the group advanced for unrelated entities; safe to proceed
	}

	newVersion, err := s.replay(ctx, mr, ws, changes, reviewerID, tx)
	if err != nil {
		return nil, err
	}

	mr.Status = models.MergeApproved
	mr.ReviewedBy = &reviewerID
	s.notifier.GraphMerged(ctx, mr, newVersion)
	metrics.MergesTotal.WithLabelValues(metrics.OutcomeApproved).Inc()

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"merge_request_id": mr.ID,
		"group_id":         mr.GroupID,
		"group_version":    newVersion,
		"changesets":       len(changes),
	}).Info("merge request approved")

	return &models.MergeResult{
		Status:       models.MergeApproved,
		GroupVersion: newVersion,
	}, nil
}

// Reject sends the workspace back to EDITING with its changeset log intact,
// so the author can revise and recommit.
func (s *Service) Reject(ctx context.Context, mergeRequestID, reviewerID string, req *models.RejectRequest) (*models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Service.Reject")
	defer span.End()

	mr, err := s.mergeRequests.GetByID(ctx, mergeRequestID)
	if err != nil {
		return nil, err
	}
	if mr.Status != models.MergePending {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "merge request is %s and cannot be rejected", mr.Status)
	}
	if err := s.requireMember(ctx, mr.GroupID, reviewerID); err != nil {
		return nil, err
	}

	if err := s.mergeRequests.UpdateReview(ctx, mr.ID, models.MergeRejected, reviewerID, &req.Comment); err != nil {
		return nil, err
	}
	if err := s.workspaces.UpdateStatus(ctx, mr.WorkspaceID, models.WorkspaceEditing); err != nil {
		return nil, err
	}

	updated, err := s.mergeRequests.GetByID(ctx, mr.ID)
	if err != nil {
		return nil, err
	}

	s.notifier.MergeRejected(ctx, updated)
	metrics.MergesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
	return updated, nil
}

// detectConflicts flags UPDATE changesets whose target person was re-saved
// after the workspace branched off. CREATEs never conflict and DELETEs are
// last-writer-wins; persons created inside the workspace have no live row
// and are skipped.
func (s *Service) detectConflicts(ctx context.Context, ws *models.Workspace, changes []models.ChangeSet) ([]models.Conflict, error) {
	var conflicts []models.Conflict
	for _, cs := range changes {
		if cs.ActionType != models.ActionUpdate {
			continue
		}
		person, err := s.persons.GetByID(ctx, cs.EntityID)
		if err != nil {
			if httperror.GetStatusCode(err) == http.StatusNotFound {
				continue
			}
			return nil, err
		}
		if person.Version > ws.BaseVersion {
			conflicts = append(conflicts, models.Conflict{
				ChangeSetID:    cs.ID,
				PersonID:       cs.EntityID,
				BaseVersion:    ws.BaseVersion,
				CurrentVersion: person.Version,
				Message:        fmt.Sprintf("person %s changed from version %d to %d since the workspace was opened", cs.EntityID, ws.BaseVersion, person.Version),
			})
		}
	}
	return conflicts, nil
}

func (s *Service) markConflicted(ctx context.Context, mr *models.MergeRequest, ws *models.Workspace, group *models.Group, reviewerID string, conflicts []models.Conflict) (*models.MergeResult, error) {
	if err := s.mergeRequests.UpdateReview(ctx, mr.ID, models.MergeConflict, reviewerID, nil); err != nil {
		return nil, err
	}
	if err := s.workspaces.UpdateStatus(ctx, ws.ID, models.WorkspaceConflict); err != nil {
		return nil, err
	}

	s.notifier.MergeConflicted(ctx, mr, conflicts)
	metrics.MergesTotal.WithLabelValues(metrics.OutcomeConflict).Inc()

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"merge_request_id": mr.ID,
		"group_id":         mr.GroupID,
		"conflicts":        len(conflicts),
	}).Warn("merge request conflicted")

	return &models.MergeResult{
		Status:       models.MergeConflict,
		Conflicts:    conflicts,
		GroupVersion: group.Version,
	}, nil
}

// replay applies the changeset log in sequence order and bumps the group
// version, all inside the caller's transaction. A failure anywhere rolls the
// whole merge back.
func (s *Service) replay(ctx context.Context, mr *models.MergeRequest, ws *models.Workspace, changes []models.ChangeSet, reviewerID string, tx database.Tx) (int, error) {
	for _, cs := range changes {
		if err := s.applyChangeSet(ctx, ws, &cs); err != nil {
			return 0, err
		}
	}

	newVersion, err := s.groups.IncrementVersion(ctx, ws.GroupID)
	if err != nil {
		return 0, err
	}
	if err := s.mergeRequests.UpdateReview(ctx, mr.ID, models.MergeApproved, reviewerID, nil); err != nil {
		return 0, err
	}
	if err := s.workspaces.UpdateStatus(ctx, ws.ID, models.WorkspaceMerged); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newVersion, nil
}

func (s *Service) applyChangeSet(ctx context.Context, ws *models.Workspace, cs *models.ChangeSet) error {
	switch cs.ActionType {
	case models.ActionCreate:
		payload, err := cs.CreatePayload()
		if err != nil {
			return err
		}
		person := &models.Person{
			ID:        cs.EntityID,
			GroupID:   ws.GroupID,
			CreatedBy: ws.UserID,
			Version:   0,
		}
		person.ApplyPayload(payload)
		_, err = s.persons.Create(ctx, person)
		return err

	case models.ActionUpdate:
		patch, err := cs.PatchPayload()
		if err != nil {
			return err
		}
		person, err := s.persons.GetByID(ctx, cs.EntityID)
		if err != nil {
			return err
		}
		patch.Apply(person)
		_, err = s.persons.Update(ctx, person)
		return err

	case models.ActionDelete:
		if err := s.relationships.DeleteForPerson(ctx, ws.GroupID, cs.EntityID); err != nil {
			return err
		}
		return s.persons.Delete(ctx, cs.EntityID)
	}

	return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown changeset action %s", cs.ActionType)
}

func (s *Service) requireMember(ctx context.Context, groupID, userID string) error {
	isMember, err := s.members.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return httperror.NewHTTPError(http.StatusForbidden, "only group members can review merge requests")
	}
	return nil
}
