// Package lineage labels every person reachable from a focus person with a
// bloodline tag by flood-filling from the focus's father and mother.
package lineage

import (
	"github.com/Ramsey-B/banyan/pkg/models"
)

// Calculator classifies persons into paternal and maternal lines. It is a
// pure computation over a group's edge set; callers fetch the edges.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Classify labels every person connected to focusID. The focus is SELF. The
// father's flood runs first and labels win on first write, so persons
// reachable from both lines are FATHER_LINE. The flood crosses every edge
// type, not only PARENT edges; a spouse or sibling edge bridging the two
// lines carries the label across.
func (c *Calculator) Classify(focusID string, edges []models.Relationship, genderByID map[string]models.Gender) map[string]models.Lineage {
	result := map[string]models.Lineage{focusID: models.LineageSelf}

	adjacency := buildAdjacency(edges)

	fatherID, motherID := findParents(focusID, edges, genderByID)

	if fatherID != "" {
		flood(fatherID, adjacency, models.LineageFather, result)
	}
	if motherID != "" {
		flood(motherID, adjacency, models.LineageMother, result)
	}

	return result
}

// FilterByLineage returns the person ids carrying the given label.
func FilterByLineage(labels map[string]models.Lineage, lineage models.Lineage) []string {
	var ids []string
	for id, l := range labels {
		if l == lineage {
			ids = append(ids, id)
		}
	}
	return ids
}

// EdgeLineage labels an edge by its endpoints. A SELF endpoint defers to the
// other end, endpoints on the same line give that line, a mixed edge is the
// bridge between lines and reads UNKNOWN.
func EdgeLineage(edge models.Relationship, labels map[string]models.Lineage) models.Lineage {
	from, fromOK := labels[edge.FromPersonID]
	to, toOK := labels[edge.ToPersonID]
	if !fromOK || !toOK {
		return models.LineageUnknown
	}

	if from == models.LineageSelf {
		return to
	}
	if to == models.LineageSelf {
		return from
	}
	if from == to {
		return from
	}
	return models.LineageUnknown
}

// findParents scans PARENT edges into the focus and matches the parent's
// gender. First match wins when a person somehow has two same-gender parents.
func findParents(focusID string, edges []models.Relationship, genderByID map[string]models.Gender) (fatherID, motherID string) {
	for _, e := range edges {
		if e.Type != models.RelationshipParent || e.ToPersonID != focusID {
			continue
		}
		switch genderByID[e.FromPersonID] {
		case models.GenderMale:
			if fatherID == "" {
				fatherID = e.FromPersonID
			}
		case models.GenderFemale:
			if motherID == "" {
				motherID = e.FromPersonID
			}
		}
	}
	return fatherID, motherID
}

func buildAdjacency(edges []models.Relationship) map[string][]string {
	adjacency := make(map[string][]string)
	for _, e := range edges {
		adjacency[e.FromPersonID] = append(adjacency[e.FromPersonID], e.ToPersonID)
		adjacency[e.ToPersonID] = append(adjacency[e.ToPersonID], e.FromPersonID)
	}
	return adjacency
}

// flood labels start and everything connected to it, skipping persons that
// already carry a label.
func flood(start string, adjacency map[string][]string, label models.Lineage, result map[string]models.Lineage) {
	if _, labeled := result[start]; labeled {
		return
	}
	result[start] = label

	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range adjacency[current] {
			if _, labeled := result[next]; labeled {
				continue
			}
			result[next] = label
			queue = append(queue, next)
		}
	}
}
