package dataloader

import (
	"github.com/jjeffery/kv"
)

// Error taxonomy. Every error the package returns can be identified by
// type via errors.As, never by matching against an error's message text.
//
// ConfigError, UnknownSourceError and UnrunBatchError are caller errors:
// they surface immediately from the offending operation. BadIDError,
// MultipleResultsError, ProtocolViolationError, BackendError and
// TimeoutError are batch errors: they live in a source's result table and
// only surface through Get, filtered by the loader's GetPolicy.

// ConfigError reports an invalid option supplied to New or to a source
// constructor.
type ConfigError struct {
	Option string
	Reason string
}

func newConfigError(option, reason string) *ConfigError {
	return &ConfigError{Option: option, Reason: reason}
}

func (e *ConfigError) Error() string {
	return kv.NewError("invalid configuration option").With("option", e.Option, "reason", e.Reason).Error()
}

// UnknownSourceError reports that Load or Get named a source that was
// never bound with AddSource.
type UnknownSourceError struct {
	Name string
}

func newUnknownSourceError(name string) *UnknownSourceError {
	return &UnknownSourceError{Name: name}
}

func (e *UnknownSourceError) Error() string {
	return kv.NewError("unknown source").With("name", e.Name).Error()
}

// UnrunBatchError reports that Get was called for a (batchKey, itemKey)
// pair that was never loaded, or was loaded after the most recent Run.
type UnrunBatchError struct {
	Source   string
	BatchKey interface{}
	ItemKey  interface{}
}

func newUnrunBatchError(source string, batchKey, itemKey interface{}) *UnrunBatchError {
	return &UnrunBatchError{Source: source, BatchKey: batchKey, ItemKey: itemKey}
}

func (e *UnrunBatchError) Error() string {
	return kv.NewError("unrun batch").With(
		"source", e.Source,
		"batchKey", e.BatchKey,
		"itemKey", e.ItemKey,
	).Error()
}

// BadIDError reports that the relational source could not coerce a
// caller-supplied item key to an entity's declared primary-key type.
type BadIDError struct {
	Entity string
	Value  interface{}
	Reason string
}

func NewBadIDError(entity string, value interface{}, reason string) *BadIDError {
	return &BadIDError{Entity: entity, Value: value, Reason: reason}
}

func (e *BadIDError) Error() string {
	return kv.NewError("bad id").With(
		"entity", e.Entity,
		"value", e.Value,
		"reason", e.Reason,
	).Error()
}

// MultipleResultsError reports that a single-valued load (a {one, entity}
// column load, or a belongs-to/has-one association) matched more than one
// row.
type MultipleResultsError struct {
	Entity string
	Detail string
}

func NewMultipleResultsError(entity, detail string) *MultipleResultsError {
	return &MultipleResultsError{Entity: entity, Detail: detail}
}

func (e *MultipleResultsError) Error() string {
	return kv.NewError("multiple results").With("entity", e.Entity, "detail", e.Detail).Error()
}

// ProtocolViolationError reports that a user-supplied RunBatchFunc
// returned a result slice whose length differs from the number of pending
// items it was called for, or an outcome of an unrecognised kind.
type ProtocolViolationError struct {
	Expected int
	Actual   int
}

func NewProtocolViolationError(expected, actual int) *ProtocolViolationError {
	return &ProtocolViolationError{Expected: expected, Actual: actual}
}

func (e *ProtocolViolationError) Error() string {
	return kv.NewError("run_batch protocol violation").With(
		"expectedOutcomes", e.Expected,
		"actualOutcomes", e.Actual,
	).Error()
}

// BackendError wraps a failure raised by an underlying store or callback.
type BackendError struct {
	Cause error
}

func NewBackendError(cause error) *BackendError {
	return &BackendError{Cause: cause}
}

func (e *BackendError) Error() string {
	return kv.Wrap(e.Cause, "backend error").Error()
}

func (e *BackendError) Unwrap() error { return e.Cause }

// TimeoutError reports that a batch's per-batch deadline was exceeded.
type TimeoutError struct {
	Source   string
	BatchKey interface{}
}

func NewTimeoutError(source string, batchKey interface{}) *TimeoutError {
	return &TimeoutError{Source: source, BatchKey: batchKey}
}

func (e *TimeoutError) Error() string {
	return kv.NewError("timeout").With("source", e.Source, "batchKey", e.BatchKey).Error()
}

// GetError is raised by Get under the RaiseOnError policy when the
// underlying outcome for a (batchKey, itemKey) pair is error(cause).
type GetError struct {
	Cause error
}

func NewGetError(cause error) *GetError {
	return &GetError{Cause: cause}
}

func (e *GetError) Error() string {
	return kv.Wrap(e.Cause, "get error").Error()
}

func (e *GetError) Unwrap() error { return e.Cause }
