// Command loaderdemo wires both built-in dataloader.Source variants
// against real backends — go.etcd.io/bbolt behind the KV source,
// sqlite3+sqlx behind the relational source — and exercises the full
// coordinator API end to end, grounded on UnAfraid-wg-ui's cmd/+
// pkg/config wiring pattern.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	dataloader "github.com/pdgonzalez872/dataloader"
	"github.com/pdgonzalez872/dataloader/dlevent"
	"github.com/pdgonzalez872/dataloader/kv"
	"github.com/pdgonzalez872/dataloader/relational"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("loaderdemo failed")
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logrus.StandardLogger()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	boltDB, err := openBoltDB(cfg.BoltPath, cfg.BoltTimeout)
	if err != nil {
		return err
	}
	defer boltDB.Close()
	defer os.Remove(cfg.BoltPath)

	if err := seedProfiles(boltDB, map[string]string{
		"u1": "Alice",
		"u2": "Bob",
	}); err != nil {
		return fmt.Errorf("failed to seed profiles: %w", err)
	}

	repo, err := newSQLiteRepo(cfg.SQLitePath)
	if err != nil {
		return err
	}
	if err := repo.migrate(); err != nil {
		return fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	if err := repo.seed(); err != nil {
		return fmt.Errorf("failed to seed sqlite data: %w", err)
	}

	userEntity := relational.NewEntity("User", relational.IDKindInt).
		WithColumns("id", "name", "role")
	postEntity := relational.NewEntity("Post", relational.IDKindInt).
		WithColumns("id", "user_id", "title")
	userEntity.WithAssociation("posts", &relational.Association{
		Kind:       relational.HasMany,
		Target:     postEntity,
		ForeignKey: "user_id",
	})

	relSource, err := relational.New(relational.Options{
		Repo:    repo,
		Query:   usersBaseQuery,
		Timeout: cfg.LoaderTimeout,
	})
	if err != nil {
		return err
	}

	kvSource := kv.New(profileFetch(boltDB))

	loader, err := dataloader.New(dataloader.Options{
		GetPolicy: dataloader.Tuples,
		Timeout:   cfg.LoaderTimeout,
		Events:    []dlevent.Hook{dlevent.NewLogSink(log)},
		Logger:    log,
	})
	if err != nil {
		return err
	}
	loader.AddSource("db", relSource)
	loader.AddSource("profiles", kvSource)

	ctx := context.Background()

	bkUsers, ik1, _ := relSource.LoadByPK(userEntity, nil, int64(1))
	_, ik2, _ := relSource.LoadByPK(userEntity, nil, int64(2))
	bkPosts, ikPosts1, _ := relSource.LoadAssociation(userEntity, "posts", nil, int64(1))

	if err := kvSource.LoadValue("profiles", "u1"); err != nil {
		return err
	}
	if err := kvSource.LoadValue("profiles", "u2"); err != nil {
		return err
	}

	if err := loader.Run(ctx); err != nil {
		log.WithError(err).Warn("run completed with source errors")
	}

	user1, err := loader.Get("db", bkUsers, ik1)
	if err != nil {
		return err
	}
	fmt.Printf("user 1: %+v\n", user1.(dataloader.Tuple).Value)

	user2, err := loader.Get("db", bkUsers, ik2)
	if err != nil {
		return err
	}
	fmt.Printf("user 2: %+v\n", user2.(dataloader.Tuple).Value)

	posts1, err := loader.Get("db", bkPosts, ikPosts1)
	if err != nil {
		return err
	}
	fmt.Printf("user 1's posts: %+v\n", posts1.(dataloader.Tuple).Value)

	profile1, ok := kvSource.Fetch(dataloader.NewBatchKey("profiles"), dataloader.NewItemKey("u1"))
	if ok {
		if v, isOK := profile1.Value(); isOK {
			fmt.Printf("profile u1: %+v\n", v)
		}
	}

	return nil
}
