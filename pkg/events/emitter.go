// Package events translates service outcomes into published graph events.
// Emission is best-effort: a broker outage must never fail the write that
// triggered the event.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/banyan/pkg/kafka"
	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/tracing"
)

const (
	EventPersonCreated       = "person.created"
	EventPersonUpdated       = "person.updated"
	EventPersonDeleted       = "person.deleted"
	EventRelationshipCreated = "relationship.created"
	EventGraphMerged         = "graph.merged"
	EventMergeConflicted     = "merge.conflicted"
	EventMergeRejected       = "merge.rejected"
)

// Publisher is the transport the emitter writes through.
type Publisher interface {
	Publish(ctx context.Context, event *kafka.GraphEvent) error
}

// Emitter fans service outcomes out to the event stream.
type Emitter struct {
	producer Publisher
	logger   ectologger.Logger
}

func NewEmitter(producer Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

func (e *Emitter) PersonCreated(ctx context.Context, p *models.Person) {
	e.emitPerson(ctx, EventPersonCreated, p)
}

func (e *Emitter) PersonUpdated(ctx context.Context, p *models.Person) {
	e.emitPerson(ctx, EventPersonUpdated, p)
}

func (e *Emitter) PersonDeleted(ctx context.Context, p *models.Person) {
	e.emitPerson(ctx, EventPersonDeleted, p)
}

func (e *Emitter) RelationshipCreated(ctx context.Context, rel *models.Relationship) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.RelationshipCreated")
	defer span.End()

	data, err := json.Marshal(rel)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to encode relationship event")
		return
	}

	e.publish(ctx, &kafka.GraphEvent{
		EventType: EventRelationshipCreated,
		GroupID:   rel.GroupID,
		SubjectID: rel.ID,
		Data:      data,
	})
}

func (e *Emitter) GraphMerged(ctx context.Context, mr *models.MergeRequest, groupVersion int) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.GraphMerged")
	defer span.End()

	e.publish(ctx, &kafka.GraphEvent{
		EventType:    EventGraphMerged,
		GroupID:      mr.GroupID,
		SubjectID:    mr.GroupID,
		GroupVersion: groupVersion,
		Data:         mustMarshal(map[string]any{"merge_request_id": mr.ID, "workspace_id": mr.WorkspaceID}),
	})
}

func (e *Emitter) MergeConflicted(ctx context.Context, mr *models.MergeRequest, conflicts []models.Conflict) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.MergeConflicted")
	defer span.End()

	e.publish(ctx, &kafka.GraphEvent{
		EventType: EventMergeConflicted,
		GroupID:   mr.GroupID,
		SubjectID: mr.ID,
		Data:      mustMarshal(map[string]any{"conflicts": conflicts}),
	})
}

func (e *Emitter) MergeRejected(ctx context.Context, mr *models.MergeRequest) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.MergeRejected")
	defer span.End()

	e.publish(ctx, &kafka.GraphEvent{
		EventType: EventMergeRejected,
		GroupID:   mr.GroupID,
		SubjectID: mr.ID,
	})
}

func (e *Emitter) emitPerson(ctx context.Context, eventType string, p *models.Person) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.emitPerson")
	defer span.End()

	data, err := json.Marshal(p)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to encode person event")
		return
	}

	e.publish(ctx, &kafka.GraphEvent{
		EventType: eventType,
		GroupID:   p.GroupID,
		SubjectID: p.ID,
		Data:      data,
	})
}

func (e *Emitter) publish(ctx context.Context, event *kafka.GraphEvent) {
	if err := e.producer.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
		}).Error("Failed to emit graph event")
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
