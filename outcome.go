package dataloader

// Outcome is the canonical result-table cell for a single (batchKey,
// itemKey) pair: exactly one of ok(value), not_found, or error(cause).
type Outcome struct {
	value    interface{}
	err      error
	notFound bool
	ok       bool
}

// OK builds an ok(value) outcome.
func OK(value interface{}) Outcome {
	return Outcome{value: value, ok: true}
}

// NotFound builds a not_found outcome.
func NotFound() Outcome {
	return Outcome{notFound: true}
}

// Err builds an error(cause) outcome.
func Err(cause error) Outcome {
	return Outcome{err: cause}
}

// Value returns the outcome's value and true if this is an ok(value)
// outcome.
func (o Outcome) Value() (interface{}, bool) {
	return o.value, o.ok
}

// IsNotFound reports whether this is a not_found outcome.
func (o Outcome) IsNotFound() bool {
	return o.notFound
}

// Error returns the outcome's cause, or nil if this is not an
// error(cause) outcome.
func (o Outcome) Error() error {
	return o.err
}
