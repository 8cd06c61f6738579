package dataloader

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// GetPolicy governs the shape Get returns for each of the three outcome
// kinds.
type GetPolicy int

const (
	// RaiseOnError returns the value for ok, nil for not_found, and
	// raises a *GetError for error(cause). This is the default.
	RaiseOnError GetPolicy = iota

	// ReturnNilOnError returns the value for ok, nil for both not_found
	// and error(cause). Each error(cause) is logged exactly once per
	// (batchKey, itemKey) the first time it is observed by Get.
	ReturnNilOnError

	// Tuples returns Tuple{true, value, nil} for ok, Tuple{true, nil,
	// nil} for not_found, and Tuple{false, nil, cause} for
	// error(cause).
	Tuples
)

func (p GetPolicy) valid() bool {
	return p == RaiseOnError || p == ReturnNilOnError || p == Tuples
}

// Tuple is the shape Get returns under the Tuples policy.
type Tuple struct {
	OK    bool
	Value interface{}
	Err   error
}

// loggedOnce tracks which (source, batchKey, itemKey) triples have already
// had their error(cause) outcome logged under ReturnNilOnError, so that a
// repeated Get for the same pair never logs twice.
type loggedOnce struct {
	mu   sync.Mutex
	seen map[string]map[pairKey]bool
}

func newLoggedOnce() *loggedOnce {
	return &loggedOnce{seen: make(map[string]map[pairKey]bool)}
}

func (l *loggedOnce) markAndCheck(source string, pk pairKey) (alreadyLogged bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	perSource, ok := l.seen[source]
	if !ok {
		perSource = make(map[pairKey]bool)
		l.seen[source] = perSource
	}
	if perSource[pk] {
		return true
	}
	perSource[pk] = true
	return false
}

// applyPolicy translates a raw Outcome into the caller-visible shape for
// the given policy. For Tuples it returns a Tuple; for the other two
// policies it returns the plain value (or nil) as the sole return value,
// with err set only for RaiseOnError.
func applyPolicy(policy GetPolicy, source string, pk pairKey, outcome Outcome, once *loggedOnce, log *logrus.Logger) (interface{}, error) {
	if v, ok := outcome.Value(); ok {
		if policy == Tuples {
			return Tuple{OK: true, Value: v}, nil
		}
		return v, nil
	}
	if outcome.IsNotFound() {
		if policy == Tuples {
			return Tuple{OK: true, Value: nil}, nil
		}
		return nil, nil
	}
	cause := outcome.Error()
	switch policy {
	case Tuples:
		return Tuple{OK: false, Err: cause}, nil
	case ReturnNilOnError:
		if !once.markAndCheck(source, pk) && log != nil {
			log.WithFields(logrus.Fields{
				"source":   source,
				"batchKey": pk.batch,
				"itemKey":  pk.item,
				"cause":    cause,
			}).Error("dataloader: get error suppressed by return_nil_on_error policy")
		}
		return nil, nil
	default: // RaiseOnError
		return nil, NewGetError(cause)
	}
}
