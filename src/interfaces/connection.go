package interfaces

// -----------------------------------------------------------------------------
// IConnection is one push-channel subscriber.
// -----------------------------------------------------------------------------

type IConnection interface {
	// ID identifies the connection in logs.
	ID() string

	// Send queues a message without blocking. An error means the connection is dead
	// or cannot keep up and should be pruned.
	Send(message interface{}) error

	// Close releases the connection. Safe to call more than once.
	Close()
}
