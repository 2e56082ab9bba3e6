package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/livequiz/go/internal/catalog"
	"github.com/mcdev12/livequiz/go/internal/dbconfig"
	"github.com/mcdev12/livequiz/go/internal/models"
)

const defaultCatalog = "go/internal/assets/catalog.yaml"

func main() {
	// 1) Load the YAML catalog
	path := defaultCatalog
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	mem, err := catalog.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert classes, then each game in its own transaction
	var inserted, skipped, errs int
	for _, c := range mem.Classes() {
		tag, err := pool.Exec(ctx, `
            INSERT INTO classes (id, name, owner_id)
            VALUES ($1, $2, $3)
            ON CONFLICT (id) DO NOTHING
        `, c.ID, c.Name, c.OwnerID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting class %s: %v\n", c.ID, err)
			errs++
			continue
		}
		if tag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	games := mem.Games()
	for _, g := range games {
		created, err := seedGame(ctx, pool, g)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting game %s: %v\n", g.ID, err)
			errs++
			continue
		}
		if created {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Catalog seed complete: %d classes, %d games, %d inserted, %d skipped, %d errors\n",
		len(mem.Classes()), len(games), inserted, skipped, errs,
	)
}

// seedGame writes a game with its activities and content. An existing game is left untouched.
func seedGame(ctx context.Context, pool *pgxpool.Pool, g *models.Game) (bool, error) {
	created := false
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO games (id, title, owner_id, created_at, updated_at)
            VALUES ($1, $2, $3, now(), now())
            ON CONFLICT (id) DO NOTHING
        `, g.ID, g.Title, g.OwnerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		created = true

		batch := &pgx.Batch{}
		for i, act := range g.Activities {
			batch.Queue(`
                INSERT INTO activities (
                  id, game_id, position, type, title, instructions,
                  duration_sec, team_size, guess_points
                ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
            `, act.ID, g.ID, i, string(act.Type), act.Title, act.Instructions,
				act.DurationSec, act.TeamSize, act.GuessPoints)
			for j, item := range act.Content {
				batch.Queue(`
                    INSERT INTO content_items (
                      id, activity_id, position, duration_sec, data, answer_key
                    ) VALUES ($1,$2,$3,$4,$5,$6)
                `, item.ID, act.ID, j, item.DurationSec, nullJSON(item.Data), nullJSON(item.AnswerKey))
			}
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return created, err
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
