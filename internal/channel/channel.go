// Package channel provides bounded message queues between a producer and a
// single consumer goroutine.
package channel

// Receiver provides read access to a queue.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
	Cap() int
}

// Sender provides write access to a queue.
type Sender[T any] interface {
	Send(T)
	TrySend(T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
}

// New creates a bounded queue. A size below one is raised to one.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
