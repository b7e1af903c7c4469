package engine

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// enqueueEvent записывает событие в outbox после коммита объекта. Ошибка
// записи не отменяет операцию и только логируется, событие при этом теряется.
func (e *Engine) enqueueEvent(eventType domain.EventType, obj domain.Object) {
	if e.outbox == nil {
		return
	}

	msg, err := e.newEventMessage(eventType, obj)
	if err == nil {
		_, err = e.outbox.Enqueue(msg)
	}
	e.metrics.RecordEventEnqueued(string(eventType), err)

	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"object_id":  obj.ObjectID(),
		}).Warn("failed to enqueue event")
	}
}

func (e *Engine) newEventMessage(eventType domain.EventType, obj domain.Object) (domain.OutboxMessage, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal %s %s: %w", obj.ObjectType(), obj.ObjectID(), err)
	}

	event := domain.Event{
		ID:      e.ids.Next(domain.ObjectTypeEvent),
		Object:  string(domain.ObjectTypeEvent),
		Type:    eventType,
		Created: e.now().Unix(),
		Data:    domain.EventData{Object: data},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	return domain.OutboxMessage{
		ID:            event.ID,
		AggregateType: string(obj.ObjectType()),
		AggregateID:   obj.ObjectID(),
		EventType:     string(eventType),
		Payload:       payload,
	}, nil
}
