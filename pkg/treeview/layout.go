package treeview

import (
	"sort"

	"github.com/Ramsey-B/banyan/pkg/models"
)

const (
	horizontalSpacing = 120.0
	verticalSpacing   = 150.0
	overlapMargin     = 5.0
)

// layout assigns X/Y coordinates in place. Y follows generation directly.
// X is resolved one generation at a time, deepest first, so parents can
// center themselves over children that already have positions.
func layout(nodes []models.TreeNode, edges []models.TreeEdge) {
	nodeByID := make(map[string]*models.TreeNode, len(nodes))
	for i := range nodes {
		nodeByID[nodes[i].PersonID] = &nodes[i]
	}

	childrenOf := make(map[string][]string)
	parentsOf := make(map[string][]string)
	for _, e := range edges {
		if e.Type != models.RelationshipParent {
			continue
		}
		childrenOf[e.FromPersonID] = append(childrenOf[e.FromPersonID], e.ToPersonID)
		parentsOf[e.ToPersonID] = append(parentsOf[e.ToPersonID], e.FromPersonID)
	}

	byGeneration := make(map[int][]*models.TreeNode)
	for i := range nodes {
		byGeneration[nodes[i].Generation] = append(byGeneration[nodes[i].Generation], &nodes[i])
	}

	generations := make([]int, 0, len(byGeneration))
	for gen := range byGeneration {
		generations = append(generations, gen)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(generations)))

	placed := make(map[string]bool, len(nodes))
	for _, gen := range generations {
		members := byGeneration[gen]
		sortMembers(members)

		for i, node := range members {
			node.Y = float64(gen) * verticalSpacing
			node.X = resolveX(node, i, len(members), childrenOf, parentsOf, nodeByID, placed)
			placed[node.PersonID] = true
		}

		spreadOverlaps(members)
	}
}

// resolveX prefers centering over already-placed children, falls back to an
// offset beside a placed parent, and otherwise spreads the row evenly around
// zero.
func resolveX(node *models.TreeNode, index, rowSize int, childrenOf, parentsOf map[string][]string, nodeByID map[string]*models.TreeNode, placed map[string]bool) float64 {
	var childXs []float64
	for _, childID := range childrenOf[node.PersonID] {
		if placed[childID] {
			childXs = append(childXs, nodeByID[childID].X)
		}
	}
	if len(childXs) > 0 {
		sum := 0.0
		for _, x := range childXs {
			sum += x
		}
		return sum / float64(len(childXs))
	}

	for _, parentID := range parentsOf[node.PersonID] {
		if placed[parentID] {
			// Alternate sides of the parent, fanning outward as the row grows.
			offset := horizontalSpacing * float64(index/2+1)
			if index%2 != 0 {
				offset = -offset
			}
			return nodeByID[parentID].X + offset
		}
	}

	return (float64(index) - float64(rowSize-1)/2.0) * horizontalSpacing
}

// sortMembers orders a generation row by birth date with unknown dates last,
// tie-breaking on id so the layout is stable between builds.
func sortMembers(members []*models.TreeNode) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		switch {
		case a.BirthDate == nil && b.BirthDate == nil:
			return a.PersonID < b.PersonID
		case a.BirthDate == nil:
			return false
		case b.BirthDate == nil:
			return true
		case a.BirthDate.Equal(*b.BirthDate):
			return a.PersonID < b.PersonID
		default:
			return a.BirthDate.Before(*b.BirthDate)
		}
	})
}

// spreadOverlaps makes a single pass over a row, pushing apart adjacent pairs
// that ended up closer than one horizontal slot. One pass keeps the result
// predictable; cascading adjustments are left to the renderer.
func spreadOverlaps(members []*models.TreeNode) {
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].X == members[j].X {
			return members[i].PersonID < members[j].PersonID
		}
		return members[i].X < members[j].X
	})

	for i := 0; i < len(members)-1; i++ {
		gap := members[i+1].X - members[i].X
		if gap < horizontalSpacing {
			shift := (horizontalSpacing-gap)/2 + overlapMargin
			members[i].X -= shift
			members[i+1].X += shift
		}
	}
}
