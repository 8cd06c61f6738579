package relational_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/pdgonzalez872/dataloader/relational"
)

// sqlRepo implements relational.Repo over a plain *sql.DB: the base
// query is a SQL string with no WHERE clause, and RunBatch appends the
// predicate as an IN (...) clause, grounded on the teacher's own
// sqlmock-backed statement tests (private/statement/statement_test.go),
// adapted here from the v1 sqlmock API to github.com/DATA-DOG/go-sqlmock.
type sqlRepo struct {
	db *sql.DB
}

func (r *sqlRepo) RunBatch(ctx context.Context, query relational.Query, predicate relational.Predicate, repoOpts interface{}) ([]relational.Row, error) {
	base, ok := query.(string)
	if !ok {
		return nil, fmt.Errorf("expected string query, got %T", query)
	}

	placeholders := make([]string, len(predicate.Values))
	args := make([]interface{}, len(predicate.Values))
	for i, v := range predicate.Values {
		placeholders[i] = "?"
		args[i] = v
	}
	stmt := fmt.Sprintf("%s where %s in (%s)", base, predicate.Column, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []relational.Row
	for rows.Next() {
		scanTargets := make([]interface{}, len(cols))
		scanDest := make([]interface{}, len(cols))
		for i := range scanTargets {
			scanDest[i] = &scanTargets[i]
		}
		if err := rows.Scan(scanDest...); err != nil {
			return nil, err
		}
		row := make(relational.Row, len(cols))
		for i, col := range cols {
			row[col] = scanTargets[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func TestSource_PrimaryKeyBatching_AgainstMockedSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("select id, name from users where id in").
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "Alice").
			AddRow(int64(2), "Bob"))

	src, err := relational.New(relational.Options{
		Repo:  &sqlRepo{db: db},
		Query: func(entity *relational.Entity, params map[string]interface{}) (relational.Query, error) {
			return "select id, name from users", nil
		},
	})
	require.NoError(t, err)

	entity := relational.NewEntity("User", relational.IDKindInt).WithColumns("id", "name")
	bk, ik1, err := src.LoadByPK(entity, nil, int64(1))
	require.NoError(t, err)
	_, ik2, err := src.LoadByPK(entity, nil, int64(2))
	require.NoError(t, err)

	require.NoError(t, src.Run(context.Background()))

	outcome, ok := src.Fetch(bk, ik1)
	require.True(t, ok)
	v, isOK := outcome.Value()
	require.True(t, isOK)
	require.Equal(t, "Alice", v.(relational.Row)["name"])

	outcome, ok = src.Fetch(bk, ik2)
	require.True(t, ok)
	v, isOK = outcome.Value()
	require.True(t, isOK)
	require.Equal(t, "Bob", v.(relational.Row)["name"])

	require.NoError(t, mock.ExpectationsWereMet())
}
