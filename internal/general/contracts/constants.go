package contracts

// Exchanges
const (
	ExchangeTripTopic = "trip_topic"
)

// Queues
const (
	QueueTripStatus = "trip_status"
)

// Routing patterns
const (
	RouteTripStatusPrefix = "trip.status." // {status}
)

// Well-known relay group names. GroupDrivers is the idle-driver pool; every
// other group name is a trip id rendered as a string.
const (
	GroupDrivers = "drivers"
)

// Message types understood by the relay.
const (
	TypeEcho       = "echo.message"
	TypeCreateTrip = "create.trip"
	TypeUpdateTrip = "update.trip"
	TypeError      = "error"
)
