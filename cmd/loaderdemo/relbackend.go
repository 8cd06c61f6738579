package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdgonzalez872/dataloader/relational"
)

// sqlxRepo implements relational.Repo over a *sqlx.DB: the base query a
// QueryFunc produces is a plain SQL string with no WHERE clause yet;
// RunBatch appends the batching predicate via sqlx.In and scans rows into
// relational.Row (map[string]interface{}) via sqlx's MapScan, the same
// struct-scanning glue the teacher's own test files pull in sqlx for.
type sqlxRepo struct {
	db *sqlx.DB
}

func newSQLiteRepo(path string) (*sqlxRepo, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	return &sqlxRepo{db: db}, nil
}

func (r *sqlxRepo) migrate() error {
	_, err := r.db.Exec(`
		create table if not exists users (
			id integer primary key autoincrement,
			name text not null,
			role text not null
		);
		create table if not exists posts (
			id integer primary key autoincrement,
			user_id integer not null,
			title text not null
		);
	`)
	return err
}

func (r *sqlxRepo) seed() error {
	_, err := r.db.Exec(`
		insert into users (name, role) values ('Alice', 'admin'), ('Bob', 'admin'), ('Carol', 'member');
		insert into posts (user_id, title) values (1, 'hello'), (1, 'world'), (2, 'post-by-bob');
	`)
	return err
}

// RunBatch implements relational.Repo. baseQuery must be a string (the
// shape this demo's QueryFunc produces); it has no WHERE clause, so the
// batching predicate is always appended as the query's sole filter.
func (r *sqlxRepo) RunBatch(ctx context.Context, baseQuery relational.Query, predicate relational.Predicate, repoOpts interface{}) ([]relational.Row, error) {
	base, ok := baseQuery.(string)
	if !ok {
		return nil, fmt.Errorf("relbackend: expected a string query, got %T", baseQuery)
	}

	query := fmt.Sprintf("%s where %s in (?)", base, predicate.Column)
	query, args, err := sqlx.In(query, predicate.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to expand IN clause: %w", err)
	}
	query = r.db.Rebind(query)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run batch query: %w", err)
	}
	defer rows.Close()

	var out []relational.Row
	for rows.Next() {
		m := make(map[string]interface{})
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, relational.Row(m))
	}
	return out, rows.Err()
}

// usersBaseQuery is the demo's relational.QueryFunc: it ignores params
// (this demo defines none) and returns the unfiltered base SELECT from the
// sqlite table that holds entity.Name's rows.
func usersBaseQuery(entity *relational.Entity, params map[string]interface{}) (relational.Query, error) {
	switch entity.Name {
	case "User":
		return "select id, name, role from users", nil
	case "Post":
		return "select id, user_id, title from posts", nil
	default:
		return nil, fmt.Errorf("relbackend: no base query registered for entity %q", entity.Name)
	}
}
