// Package treeview answers "show me the tree around person X" queries with a
// bounded traversal and a deterministic 2D layout.
package treeview

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/banyan/pkg/lineage"
	"github.com/Ramsey-B/banyan/pkg/metrics"
	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/tracing"
)

type PersonStore interface {
	ListByGroup(ctx context.Context, groupID string) ([]models.Person, error)
}

type RelationshipStore interface {
	ListByGroup(ctx context.Context, groupID string) ([]models.Relationship, error)
}

type MembershipStore interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

type GroupStore interface {
	GetByID(ctx context.Context, id string) (*models.Group, error)
}

// ViewCache caches built views keyed by group version, so a merge naturally
// invalidates stale entries.
type ViewCache interface {
	Get(ctx context.Context, groupID string, groupVersion int, focusID string, depth int) (*models.TreeView, bool)
	Set(ctx context.Context, groupID string, groupVersion int, focusID string, depth int, view *models.TreeView)
}

// Service builds renderable tree views
type Service struct {
	logger        ectologger.Logger
	persons       PersonStore
	relationships RelationshipStore
	members       MembershipStore
	groups        GroupStore
	classifier    *lineage.Calculator
	cache         ViewCache
}

func NewService(
	logger ectologger.Logger,
	persons PersonStore,
	relationships RelationshipStore,
	members MembershipStore,
	groups GroupStore,
	cache ViewCache,
) *Service {
	return &Service{
		logger:        logger,
		persons:       persons,
		relationships: relationships,
		members:       members,
		groups:        groups,
		classifier:    lineage.NewCalculator(),
		cache:         cache,
	}
}

// BuildView returns the subgraph within depth relationship hops of the focus
// person, generation-labeled and laid out. An empty focusID defaults to the
// group's oldest person record.
func (s *Service) BuildView(ctx context.Context, groupID, requesterID, focusID string, depth int) (*models.TreeView, error) {
	ctx, span := tracing.StartSpan(ctx, "treeview.Service.BuildView")
	defer span.End()

	isMember, err := s.members.IsMember(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "only group members can view the tree")
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	persons, err := s.persons.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(persons) == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "group has no persons")
	}

	if focusID == "" {
		focusID = persons[0].ID
	}

	personByID := make(map[string]*models.Person, len(persons))
	for i := range persons {
		personByID[persons[i].ID] = &persons[i]
	}
	if _, ok := personByID[focusID]; !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s not found in group", focusID)
	}

	if s.cache != nil {
		if view, ok := s.cache.Get(ctx, groupID, group.Version, focusID, depth); ok {
			return view, nil
		}
	}

	edges, err := s.relationships.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	view := s.build(groupID, focusID, depth, personByID, edges)
	metrics.TreeBuildDuration.Observe(time.Since(start).Seconds())

	if s.cache != nil {
		s.cache.Set(ctx, groupID, group.Version, focusID, depth, view)
	}
	return view, nil
}

// Lineage classifies every person in the group against the focus person's
// father and mother lines. An empty focusID defaults like BuildView does.
func (s *Service) Lineage(ctx context.Context, groupID, requesterID, focusID string) (*models.LineageView, error) {
	ctx, span := tracing.StartSpan(ctx, "treeview.Service.Lineage")
	defer span.End()

	isMember, err := s.members.IsMember(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "only group members can view lineage")
	}

	persons, err := s.persons.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(persons) == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "group has no persons")
	}

	if focusID == "" {
		focusID = persons[0].ID
	}

	genderByID := make(map[string]models.Gender, len(persons))
	found := false
	for _, p := range persons {
		genderByID[p.ID] = p.Gender
		if p.ID == focusID {
			found = true
		}
	}
	if !found {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s not found in group", focusID)
	}

	edges, err := s.relationships.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	labels := s.classifier.Classify(focusID, edges, genderByID)

	members := make([]models.LineageMember, 0, len(persons))
	for _, p := range persons {
		label, ok := labels[p.ID]
		if !ok {
			label = models.LineageUnknown
		}
		members = append(members, models.LineageMember{
			PersonID:  p.ID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Lineage:   label,
		})
	}

	return &models.LineageView{
		GroupID:       groupID,
		FocusPersonID: focusID,
		Members:       members,
	}, nil
}

func (s *Service) build(groupID, focusID string, depth int, personByID map[string]*models.Person, edges []models.Relationship) *models.TreeView {
	generations := traverse(focusID, depth, edges)

	included := make([]models.TreeEdge, 0)
	for _, e := range edges {
		_, fromIn := generations[e.FromPersonID]
		_, toIn := generations[e.ToPersonID]
		if fromIn && toIn {
			included = append(included, models.TreeEdge{
				ID:           e.ID,
				FromPersonID: e.FromPersonID,
				ToPersonID:   e.ToPersonID,
				Type:         e.Type,
			})
		}
	}

	genderByID := make(map[string]models.Gender, len(personByID))
	for id, p := range personByID {
		genderByID[id] = p.Gender
	}
	labels := s.classifier.Classify(focusID, edges, genderByID)

	nodes := make([]models.TreeNode, 0, len(generations))
	for id, gen := range generations {
		p := personByID[id]
		if p == nil {
			continue
		}
		label, ok := labels[id]
		if !ok {
			label = models.LineageUnknown
		}
		nodes = append(nodes, models.TreeNode{
			PersonID:   id,
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			Gender:     p.Gender,
			BirthDate:  p.BirthDate,
			DeathDate:  p.DeathDate,
			Generation: gen,
			Lineage:    label,
		})
	}

	layout(nodes, included)

	return &models.TreeView{
		GroupID:       groupID,
		FocusPersonID: focusID,
		Depth:         depth,
		Nodes:         nodes,
		Edges:         included,
	}
}

// traverse runs a BFS bounded by depth hops and returns the signed generation
// of every included person. Distance counts every edge; generation only moves
// on PARENT edges: +1 stepping parent -> child, -1 stepping child -> parent.
// A person can sit many hops away yet share the focus's generation via spouse
// or sibling chains.
func traverse(focusID string, depth int, edges []models.Relationship) map[string]int {
	type neighbor struct {
		id       string
		genDelta int
	}
	adjacency := make(map[string][]neighbor)
	for _, e := range edges {
		delta := 0
		if e.Type == models.RelationshipParent {
			delta = 1
		}
		adjacency[e.FromPersonID] = append(adjacency[e.FromPersonID], neighbor{id: e.ToPersonID, genDelta: delta})
		adjacency[e.ToPersonID] = append(adjacency[e.ToPersonID], neighbor{id: e.FromPersonID, genDelta: -delta})
	}

	generations := map[string]int{focusID: 0}
	distances := map[string]int{focusID: 0}

	queue := []string{focusID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if distances[current] >= depth {
			continue
		}

		for _, n := range adjacency[current] {
			if _, visited := distances[n.id]; visited {
				continue
			}
			distances[n.id] = distances[current] + 1
			generations[n.id] = generations[current] + n.genDelta
			queue = append(queue, n.id)
		}
	}

	return generations
}
