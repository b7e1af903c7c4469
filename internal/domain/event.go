package domain

import "encoding/json"

// EventType — тип уведомления о изменении ресурса.
type EventType string

const (
	EventTypeChargeSucceeded EventType = "charge.succeeded"
	EventTypeChargeCaptured  EventType = "charge.captured"
	EventTypeCustomerCreated EventType = "customer.created"
)

// Event — уведомление в формате API, которое уходит в outbox.
type Event struct {
	ID       string    `json:"id"`
	Object   string    `json:"object"`
	Type     EventType `json:"type"`
	Created  int64     `json:"created"`
	Livemode bool      `json:"livemode"`
	Data     EventData `json:"data"`
}

// EventData содержит снимок объекта на момент события.
type EventData struct {
	Object json.RawMessage `json:"object"`
}
