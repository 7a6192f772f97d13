package model

// Result is the outcome of a point-in-time contract read. A read that reverted
// or returned nothing usable is Unavailable; callers must handle both arms.
type Result[T any] struct {
	value T
	ok    bool
}

// Available wraps a successful read.
func Available[T any](value T) Result[T] {
	return Result[T]{value: value, ok: true}
}

// Unavailable marks a failed read.
func Unavailable[T any]() Result[T] {
	return Result[T]{}
}

// Get returns the value and whether it is available.
func (r Result[T]) Get() (T, bool) {
	return r.value, r.ok
}

func (r Result[T]) IsAvailable() bool {
	return r.ok
}
