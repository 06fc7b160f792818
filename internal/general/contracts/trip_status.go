package contracts

import "time"

// Meta adds cross-cutting headers all broker messages may carry.
type Meta struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // Correlation for tracing across services
	Producer      string    `json:"producer,omitempty"`       // Producer service name, e.g. "taxi-service"
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

// TripStatusMessage is published on every trip lifecycle change.
// Routing key: "trip.status.{status}" on ExchangeTripTopic.
type TripStatusMessage struct {
	TripID    string    `json:"trip_id"`
	Status    string    `json:"status"` // REQUESTED|IN_PROGRESS|COMPLETED|CANCELLED
	RiderID   string    `json:"rider_id"`
	DriverID  string    `json:"driver_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Meta
}
