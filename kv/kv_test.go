package kv_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dataloader "github.com/pdgonzalez872/dataloader"
	"github.com/pdgonzalez872/dataloader/kv"
)

func TestSource_LoadRunFetch_OK(t *testing.T) {
	calls := 0
	src := kv.New(func(ctx context.Context, batchKey interface{}, itemKeys []interface{}) (map[interface{}]interface{}, error) {
		calls++
		out := make(map[interface{}]interface{}, len(itemKeys))
		for _, k := range itemKeys {
			out[k] = k.(string) + "-value"
		}
		return out, nil
	})

	require.NoError(t, src.LoadValue("users", "u1"))
	require.NoError(t, src.LoadValue("users", "u2"))
	require.NoError(t, src.Run(context.Background()))
	assert.Equal(t, 1, calls, "two item keys under one batch key should cost exactly one fetch")

	outcome, ok := src.Fetch(dataloader.NewBatchKey("users"), dataloader.NewItemKey("u1"))
	require.True(t, ok)
	v, isOK := outcome.Value()
	require.True(t, isOK)
	assert.Equal(t, "u1-value", v)
}

func TestSource_NotFound(t *testing.T) {
	src := kv.New(func(ctx context.Context, batchKey interface{}, itemKeys []interface{}) (map[interface{}]interface{}, error) {
		return map[interface{}]interface{}{}, nil
	})
	require.NoError(t, src.LoadValue("users", "ghost"))
	require.NoError(t, src.Run(context.Background()))

	outcome, ok := src.Fetch(dataloader.NewBatchKey("users"), dataloader.NewItemKey("ghost"))
	require.True(t, ok)
	assert.True(t, outcome.IsNotFound())
}

func TestSource_BackendErrorAppliesToWholeBatch(t *testing.T) {
	backendErr := errors.New("connection refused")
	src := kv.New(func(ctx context.Context, batchKey interface{}, itemKeys []interface{}) (map[interface{}]interface{}, error) {
		return nil, backendErr
	})
	require.NoError(t, src.LoadValue("users", "u1"))
	require.NoError(t, src.LoadValue("users", "u2"))
	require.NoError(t, src.Run(context.Background()))

	for _, k := range []string{"u1", "u2"} {
		outcome, ok := src.Fetch(dataloader.NewBatchKey("users"), dataloader.NewItemKey(k))
		require.True(t, ok)
		require.Error(t, outcome.Error())
		var be *dataloader.BackendError
		assert.ErrorAs(t, outcome.Error(), &be)
	}
}

func TestSource_Timeout(t *testing.T) {
	src := kv.New(func(ctx context.Context, batchKey interface{}, itemKeys []interface{}) (map[interface{}]interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, kv.WithTimeout(10*time.Millisecond))

	require.NoError(t, src.LoadValue("users", "u1"))
	require.NoError(t, src.Run(context.Background()))

	outcome, ok := src.Fetch(dataloader.NewBatchKey("users"), dataloader.NewItemKey("u1"))
	require.True(t, ok)
	require.Error(t, outcome.Error())
	var te *dataloader.TimeoutError
	assert.ErrorAs(t, outcome.Error(), &te)
}

func TestSource_AlreadyResolvedLoadIsNoop(t *testing.T) {
	calls := 0
	src := kv.New(func(ctx context.Context, batchKey interface{}, itemKeys []interface{}) (map[interface{}]interface{}, error) {
		calls++
		out := make(map[interface{}]interface{}, len(itemKeys))
		for _, k := range itemKeys {
			out[k] = "v"
		}
		return out, nil
	})

	require.NoError(t, src.LoadValue("users", "u1"))
	require.NoError(t, src.Run(context.Background()))
	require.Equal(t, 1, calls)

	// Loading the same pair again after it is resolved must not re-enqueue it.
	require.NoError(t, src.LoadValue("users", "u1"))
	assert.False(t, src.PendingBatches())
}

func TestSource_SequentialDispatchWhenAsyncFalse(t *testing.T) {
	var concurrent int32
	src := kv.New(func(ctx context.Context, batchKey interface{}, itemKeys []interface{}) (map[interface{}]interface{}, error) {
		concurrent++
		defer func() { concurrent-- }()
		time.Sleep(5 * time.Millisecond)
		if concurrent > 1 {
			t.Errorf("expected sequential dispatch, observed %d concurrent fetches", concurrent)
		}
		out := make(map[interface{}]interface{}, len(itemKeys))
		for _, k := range itemKeys {
			out[k] = "v"
		}
		return out, nil
	}, kv.WithAsync(false))

	require.NoError(t, src.LoadValue("a", "1"))
	require.NoError(t, src.LoadValue("b", "1"))
	require.NoError(t, src.Run(context.Background()))
}
