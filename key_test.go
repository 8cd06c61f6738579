package dataloader_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dataloader "github.com/pdgonzalez872/dataloader"
)

func TestNewBatchKey_ValueEquality(t *testing.T) {
	a := dataloader.NewBatchKey("users")
	b := dataloader.NewBatchKey("users")
	assert.Equal(t, a, b, "two batch keys built from equal values must compare equal")

	c := dataloader.NewBatchKey("posts")
	assert.NotEqual(t, a, c)
}

func TestNewBatchKey_MapOrderIndependence(t *testing.T) {
	a := dataloader.NewBatchKey(map[string]interface{}{"role": "admin", "active": true})
	b := dataloader.NewBatchKey(map[string]interface{}{"active": true, "role": "admin"})
	assert.Equal(t, a, b, "batch keys built from the same map contents in different insertion order must coalesce")
}

func TestNewCompoundBatchKey_PositionMatters(t *testing.T) {
	a := dataloader.NewCompoundBatchKey("column", "one", "User", "role")
	b := dataloader.NewCompoundBatchKey("column", "one", "role", "User")
	assert.NotEqual(t, a, b, "compound batch key components are positional, not interchangeable")
}

func TestNewItemKey_DistinctForDistinctValues(t *testing.T) {
	a := dataloader.NewItemKey(1)
	b := dataloader.NewItemKey(2)
	assert.NotEqual(t, a, b)

	c := dataloader.NewItemKey(1)
	assert.Equal(t, a, c)
}
