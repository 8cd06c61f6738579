package dataloader_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dataloader "github.com/pdgonzalez872/dataloader"
)

// countingSource is a minimal dataloader.Source test double that counts
// how many times Run dispatches, grounded on the teacher's own small,
// hand-rolled test doubles for Querier/DB rather than a mocking library.
type countingSource struct {
	calls     int32
	pending   map[dataloader.BatchKey]map[dataloader.ItemKey]struct{}
	results   map[dataloader.BatchKey]map[dataloader.ItemKey]dataloader.Outcome
	fail      bool
	failItems map[dataloader.ItemKey]bool
}

func newCountingSource() *countingSource {
	return &countingSource{
		pending: make(map[dataloader.BatchKey]map[dataloader.ItemKey]struct{}),
		results: make(map[dataloader.BatchKey]map[dataloader.ItemKey]dataloader.Outcome),
	}
}

func (s *countingSource) Load(bk dataloader.BatchKey, ik dataloader.ItemKey) error {
	if perBatch, ok := s.results[bk]; ok {
		if _, ok := perBatch[ik]; ok {
			return nil
		}
	}
	items, ok := s.pending[bk]
	if !ok {
		items = make(map[dataloader.ItemKey]struct{})
		s.pending[bk] = items
	}
	items[ik] = struct{}{}
	return nil
}

func (s *countingSource) Run(ctx context.Context) error {
	atomic.AddInt32(&s.calls, 1)
	for bk, items := range s.pending {
		perBatch, ok := s.results[bk]
		if !ok {
			perBatch = make(map[dataloader.ItemKey]dataloader.Outcome)
			s.results[bk] = perBatch
		}
		for ik := range items {
			if s.fail || s.failItems[ik] {
				perBatch[ik] = dataloader.Err(errors.New("boom"))
				continue
			}
			perBatch[ik] = dataloader.OK("value")
		}
	}
	s.pending = make(map[dataloader.BatchKey]map[dataloader.ItemKey]struct{})
	return nil
}

func (s *countingSource) Fetch(bk dataloader.BatchKey, ik dataloader.ItemKey) (dataloader.Outcome, bool) {
	perBatch, ok := s.results[bk]
	if !ok {
		return dataloader.Outcome{}, false
	}
	outcome, ok := perBatch[ik]
	return outcome, ok
}

func (s *countingSource) PendingBatches() bool          { return len(s.pending) > 0 }
func (s *countingSource) Timeout() time.Duration        { return 0 }
func (s *countingSource) Async() bool                   { return true }

func TestLoader_New_DefaultsAndValidation(t *testing.T) {
	l, err := dataloader.New(dataloader.Options{})
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = dataloader.New(dataloader.Options{GetPolicy: dataloader.GetPolicy(99)})
	require.Error(t, err)
	var cfg *dataloader.ConfigError
	assert.ErrorAs(t, err, &cfg)
}

func TestLoader_UnknownSource(t *testing.T) {
	l, err := dataloader.New(dataloader.Options{})
	require.NoError(t, err)

	err = l.Load("missing", dataloader.NewBatchKey("b"), dataloader.NewItemKey("i"))
	require.Error(t, err)
	var use *dataloader.UnknownSourceError
	assert.ErrorAs(t, err, &use)
}

func TestLoader_GetBeforeRunIsUnrunBatchError(t *testing.T) {
	l, err := dataloader.New(dataloader.Options{})
	require.NoError(t, err)
	src := newCountingSource()
	l.AddSource("s", src)

	bk := dataloader.NewBatchKey("b")
	ik := dataloader.NewItemKey("i")
	require.NoError(t, l.Load("s", bk, ik))

	_, err = l.Get("s", bk, ik)
	require.Error(t, err)
	var ube *dataloader.UnrunBatchError
	assert.ErrorAs(t, err, &ube)
}

func TestLoader_DuplicateLoadCostsOneBackendCall(t *testing.T) {
	l, err := dataloader.New(dataloader.Options{})
	require.NoError(t, err)
	src := newCountingSource()
	l.AddSource("s", src)

	bk := dataloader.NewBatchKey("b")
	ik := dataloader.NewItemKey("i")
	require.NoError(t, l.Load("s", bk, ik))
	require.NoError(t, l.Load("s", bk, ik))
	require.NoError(t, l.Run(context.Background()))

	v, err := l.Get("s", bk, ik)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
	assert.False(t, l.PendingBatches())
}

func TestLoader_GetMany_PreservesOrder(t *testing.T) {
	l, err := dataloader.New(dataloader.Options{GetPolicy: dataloader.ReturnNilOnError})
	require.NoError(t, err)
	src := newCountingSource()
	l.AddSource("s", src)

	bk := dataloader.NewBatchKey("b")
	iks := []dataloader.ItemKey{
		dataloader.NewItemKey("c"),
		dataloader.NewItemKey("a"),
		dataloader.NewItemKey("b"),
	}
	// Failing only the first key makes its position visible in the result.
	src.failItems = map[dataloader.ItemKey]bool{iks[0]: true}
	require.NoError(t, l.LoadMany("s", bk, iks))
	require.NoError(t, l.Run(context.Background()))

	vs, err := l.GetMany("s", bk, iks)
	require.NoError(t, err)
	require.Len(t, vs, 3)
	assert.Equal(t, []interface{}{nil, "value", "value"}, vs)
}

func TestLoader_RaiseOnErrorPolicy(t *testing.T) {
	l, err := dataloader.New(dataloader.Options{GetPolicy: dataloader.RaiseOnError})
	require.NoError(t, err)
	src := newCountingSource()
	src.fail = true
	l.AddSource("s", src)

	bk := dataloader.NewBatchKey("b")
	ik := dataloader.NewItemKey("i")
	require.NoError(t, l.Load("s", bk, ik))
	require.NoError(t, l.Run(context.Background()))

	_, err = l.Get("s", bk, ik)
	require.Error(t, err)
	var ge *dataloader.GetError
	assert.ErrorAs(t, err, &ge)
}

func TestLoader_ReturnNilOnErrorPolicy(t *testing.T) {
	l, err := dataloader.New(dataloader.Options{GetPolicy: dataloader.ReturnNilOnError})
	require.NoError(t, err)
	src := newCountingSource()
	src.fail = true
	l.AddSource("s", src)

	bk := dataloader.NewBatchKey("b")
	ik := dataloader.NewItemKey("i")
	require.NoError(t, l.Load("s", bk, ik))
	require.NoError(t, l.Run(context.Background()))

	v, err := l.Get("s", bk, ik)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestLoader_TuplesPolicy(t *testing.T) {
	l, err := dataloader.New(dataloader.Options{GetPolicy: dataloader.Tuples})
	require.NoError(t, err)
	src := newCountingSource()
	l.AddSource("s", src)

	bk := dataloader.NewBatchKey("b")
	ik := dataloader.NewItemKey("i")
	require.NoError(t, l.Load("s", bk, ik))
	require.NoError(t, l.Run(context.Background()))

	v, err := l.Get("s", bk, ik)
	require.NoError(t, err)
	tuple, ok := v.(dataloader.Tuple)
	require.True(t, ok)
	assert.True(t, tuple.OK)
	assert.Equal(t, "value", tuple.Value)
}
