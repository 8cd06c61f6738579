package relational_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dataloader "github.com/pdgonzalez872/dataloader"
	"github.com/pdgonzalez872/dataloader/relational"
)

// fakeRepo is an in-memory Repo test double: it runs the predicate
// against a fixed row set rather than a real database, grounded on the
// teacher's own in-memory test doubles for Querier/DB.
type fakeRepo struct {
	rows  []relational.Row
	calls int
}

func (r *fakeRepo) RunBatch(ctx context.Context, q relational.Query, pred relational.Predicate, opts interface{}) ([]relational.Row, error) {
	r.calls++
	wanted := make(map[interface{}]bool, len(pred.Values))
	for _, v := range pred.Values {
		wanted[v] = true
	}
	var out []relational.Row
	for _, row := range r.rows {
		if v, ok := row.Get(pred.Column); ok && wanted[v] {
			out = append(out, row)
		}
	}
	return out, nil
}

func usersEntity() *relational.Entity {
	return relational.NewEntity("User", relational.IDKindInt).WithColumns("id", "name", "role")
}

func TestSource_PrimaryKeyBatching(t *testing.T) {
	repo := &fakeRepo{rows: []relational.Row{
		{"id": int64(1), "name": "Alice"},
		{"id": int64(2), "name": "Bob"},
		{"id": int64(3), "name": "Carol"},
	}}
	src, err := relational.New(relational.Options{Repo: repo})
	require.NoError(t, err)

	entity := usersEntity()
	bk1, ik1, err := src.LoadByPK(entity, nil, "1")
	require.NoError(t, err)
	_, ik2, err := src.LoadByPK(entity, nil, 2)
	require.NoError(t, err)
	_, ik3, err := src.LoadByPK(entity, nil, int64(3))
	require.NoError(t, err)
	_, ikMissing, err := src.LoadByPK(entity, nil, 99)
	require.NoError(t, err)

	require.NoError(t, src.Run(context.Background()))
	assert.Equal(t, 1, repo.calls, "four ids under one entity/params should cost exactly one backend call")

	outcome, ok := src.Fetch(bk1, ik1)
	require.True(t, ok)
	v, isOK := outcome.Value()
	require.True(t, isOK)
	assert.Equal(t, "Alice", v.(relational.Row)["name"])

	outcome, ok = src.Fetch(bk1, ik2)
	require.True(t, ok)
	_, isOK = outcome.Value()
	assert.True(t, isOK)

	outcome, ok = src.Fetch(bk1, ik3)
	require.True(t, ok)
	_, isOK = outcome.Value()
	assert.True(t, isOK)

	outcome, ok = src.Fetch(bk1, ikMissing)
	require.True(t, ok)
	assert.True(t, outcome.IsNotFound())
}

func TestSource_ColumnLoad_Many(t *testing.T) {
	repo := &fakeRepo{rows: []relational.Row{
		{"id": int64(1), "role": "admin"},
		{"id": int64(2), "role": "admin"},
		{"id": int64(3), "role": "member"},
	}}
	src, err := relational.New(relational.Options{Repo: repo})
	require.NoError(t, err)

	entity := usersEntity()
	bk, ik, err := src.LoadByColumn(relational.Many, entity, nil, "role", "admin")
	require.NoError(t, err)
	require.NoError(t, src.Run(context.Background()))

	outcome, ok := src.Fetch(bk, ik)
	require.True(t, ok)
	v, isOK := outcome.Value()
	require.True(t, isOK)
	rows := v.([]relational.Row)
	assert.Len(t, rows, 2)
}

func TestSource_ColumnLoad_OneWithMultipleRowsIsMultipleResultsError(t *testing.T) {
	repo := &fakeRepo{rows: []relational.Row{
		{"id": int64(1), "role": "admin"},
		{"id": int64(2), "role": "admin"},
	}}
	src, err := relational.New(relational.Options{Repo: repo})
	require.NoError(t, err)

	entity := usersEntity()
	bk, ik, err := src.LoadByColumn(relational.One, entity, nil, "role", "admin")
	require.NoError(t, err)
	require.NoError(t, src.Run(context.Background()))

	outcome, ok := src.Fetch(bk, ik)
	require.True(t, ok)
	require.Error(t, outcome.Error())
	var mre *dataloader.MultipleResultsError
	assert.ErrorAs(t, outcome.Error(), &mre)
}

func TestSource_Association_HasMany(t *testing.T) {
	postEntity := relational.NewEntity("Post", relational.IDKindInt).WithColumns("id", "user_id")
	userEntity := usersEntity().WithAssociation("posts", &relational.Association{
		Kind:       relational.HasMany,
		Target:     postEntity,
		ForeignKey: "user_id",
	})

	repo := &fakeRepo{rows: []relational.Row{
		{"id": int64(10), "user_id": int64(1)},
		{"id": int64(11), "user_id": int64(1)},
		{"id": int64(12), "user_id": int64(2)},
	}}
	src, err := relational.New(relational.Options{Repo: repo})
	require.NoError(t, err)

	bk1, ik1, err := src.LoadAssociation(userEntity, "posts", nil, int64(1))
	require.NoError(t, err)
	_, ik2, err := src.LoadAssociation(userEntity, "posts", nil, int64(2))
	require.NoError(t, err)
	require.NoError(t, src.Run(context.Background()))
	assert.Equal(t, 1, repo.calls)

	outcome, ok := src.Fetch(bk1, ik1)
	require.True(t, ok)
	v, isOK := outcome.Value()
	require.True(t, isOK)
	assert.Len(t, v.([]relational.Row), 2)

	outcome, ok = src.Fetch(bk1, ik2)
	require.True(t, ok)
	v, isOK = outcome.Value()
	require.True(t, isOK)
	assert.Len(t, v.([]relational.Row), 1)
}

func TestSource_BadIDFailsOnlyThatItem(t *testing.T) {
	repo := &fakeRepo{rows: []relational.Row{{"id": int64(1), "name": "Alice"}}}
	src, err := relational.New(relational.Options{Repo: repo})
	require.NoError(t, err)

	entity := usersEntity()
	bk, goodIK, err := src.LoadByPK(entity, nil, int64(1))
	require.NoError(t, err)
	_, badIK, err := src.LoadByPK(entity, nil, "not-a-number")
	require.NoError(t, err)
	require.NoError(t, src.Run(context.Background()))

	outcome, ok := src.Fetch(bk, goodIK)
	require.True(t, ok)
	_, isOK := outcome.Value()
	assert.True(t, isOK)

	outcome, ok = src.Fetch(bk, badIK)
	require.True(t, ok)
	require.Error(t, outcome.Error())
	var bid *dataloader.BadIDError
	assert.ErrorAs(t, outcome.Error(), &bid)
}

func TestNew_RequiresRepo(t *testing.T) {
	_, err := relational.New(relational.Options{})
	require.Error(t, err)
	var cfg *dataloader.ConfigError
	assert.ErrorAs(t, err, &cfg)
}

func TestSource_RunBatchLengthMismatchIsProtocolViolation(t *testing.T) {
	repo := &fakeRepo{}
	runBatch := func(ctx context.Context, entity *relational.Entity, baseQuery relational.Query, column string, items []interface{}, repoOpts interface{}) ([]relational.ItemOutcome, error) {
		return []relational.ItemOutcome{{Kind: relational.OutcomeOK, Value: "only one"}}, nil
	}
	src, err := relational.New(relational.Options{Repo: repo, RunBatch: runBatch})
	require.NoError(t, err)

	entity := usersEntity()
	bk, ik1, err := src.LoadByPK(entity, nil, int64(1))
	require.NoError(t, err)
	_, ik2, err := src.LoadByPK(entity, nil, int64(2))
	require.NoError(t, err)
	require.NoError(t, src.Run(context.Background()))

	outcome, ok := src.Fetch(bk, ik1)
	require.True(t, ok)
	require.Error(t, outcome.Error())
	var pv *dataloader.ProtocolViolationError
	assert.ErrorAs(t, outcome.Error(), &pv)

	outcome, ok = src.Fetch(bk, ik2)
	require.True(t, ok)
	require.Error(t, outcome.Error())
}
