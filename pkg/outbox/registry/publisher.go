package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/partsrunner-backend/pkg/config"
	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	"github.com/angelmondragon/partsrunner-backend/pkg/outbox"
	"github.com/angelmondragon/partsrunner-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the publisher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DispatchTopic == "" {
		return nil, fmt.Errorf("dispatch topic is required")
	}
	graphTopic := cfg.GraphTopic
	if graphTopic == "" {
		graphTopic = cfg.DispatchTopic
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventRunCreated,
			AggregateType:  enums.AggregateRunInstance,
			PayloadFactory: func() interface{} { return &payloads.RunCreatedEvent{} },
		},
		{
			EventType:      enums.EventRunStateChanged,
			AggregateType:  enums.AggregateRunInstance,
			PayloadFactory: func() interface{} { return &payloads.RunStateChangedEvent{} },
		},
		{
			EventType:      enums.EventRunAssigned,
			AggregateType:  enums.AggregateRunInstance,
			PayloadFactory: func() interface{} { return &payloads.RunAssignedEvent{} },
		},
		{
			EventType:      enums.EventRunsMerged,
			AggregateType:  enums.AggregateRunInstance,
			PayloadFactory: func() interface{} { return &payloads.RunsMergedEvent{} },
		},
		{
			EventType:      enums.EventRequestAssigned,
			AggregateType:  enums.AggregatePartsRequest,
			PayloadFactory: func() interface{} { return &payloads.RequestAssignedEvent{} },
		},
		{
			EventType:      enums.EventRequestSplit,
			AggregateType:  enums.AggregatePartsRequest,
			PayloadFactory: func() interface{} { return &payloads.RequestSplitEvent{} },
		},
		{
			EventType:      enums.EventRequestUnbound,
			AggregateType:  enums.AggregatePartsRequest,
			PayloadFactory: func() interface{} { return &payloads.RequestUnboundEvent{} },
		},
	} {
		desc.Topic = cfg.DispatchTopic
		reg.register(desc)
	}
	reg.register(EventDescriptor{
		EventType:      enums.EventGraphRebuilt,
		AggregateType:  enums.AggregateRouteGraph,
		Topic:          graphTopic,
		PayloadFactory: func() interface{} { return &payloads.GraphRebuiltEvent{} },
	})

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID <= 0 {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
