package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mcdev12/livequiz/go/internal/archive"
	"github.com/mcdev12/livequiz/go/internal/auth"
	"github.com/mcdev12/livequiz/go/internal/catalog"
	"github.com/mcdev12/livequiz/go/internal/dbconfig"
	"github.com/mcdev12/livequiz/go/internal/drawingstore"
	"github.com/mcdev12/livequiz/go/internal/session/teamchallenge"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMigrateCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the catalog and archive tables, importing --catalog when given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dsn := dbconfig.NewConfigFromEnv().DSN()

			store, err := catalog.OpenGorm(dsn)
			if err != nil {
				return err
			}
			defer closeCatalog(store)()
			if err := store.AutoMigrate(ctx); err != nil {
				return err
			}

			arch, err := archive.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer arch.Close()
			if err := arch.Migrate(ctx); err != nil {
				return err
			}

			if cfg.catalogFile == "" {
				return nil
			}
			mem, err := catalog.LoadFile(cfg.catalogFile)
			if err != nil {
				return err
			}
			if err := store.Import(ctx, mem); err != nil {
				return err
			}
			log.Info().
				Str("file", cfg.catalogFile).
				Int("games", len(mem.Games())).
				Int("classes", len(mem.Classes())).
				Msg("catalog imported")
			return nil
		},
	}
}

func newTokenCmd(cfg *Config) *cobra.Command {
	var id auth.Identity
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.jwtSecret == "" {
				return errors.New("--jwt-secret is required (env: LIVEQUIZ_JWT_SECRET)")
			}
			if id.Role != auth.RoleTeacher && id.Role != auth.RoleStudent {
				return fmt.Errorf("unknown role %q", id.Role)
			}
			token, err := auth.NewTokens(cfg.jwtSecret, cfg.jwtIssuer, cfg.tokenTTL, nil).Sign(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&id.UserID, "user", "", "user id")
	fs.StringVar(&id.Name, "name", "", "display name")
	fs.StringVar(&id.Role, "role", auth.RoleStudent, "teacher or student")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newDrawingCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drawing <access-code> <team-id>",
		Short: "Print the last saved canvas of a team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.redisAddr == "" {
				return errors.New("--redis-addr is required (env: LIVEQUIZ_REDIS_ADDR)")
			}
			store, err := drawingstore.NewRedisStore(cmd.Context(), drawingstore.RedisConfig{
				Addr:     cfg.redisAddr,
				Password: cfg.redisPassword,
				DB:       cfg.redisDB,
			})
			if err != nil {
				return err
			}
			defer store.Close()
			return printDrawing(cmd.Context(), cmd.OutOrStdout(), store, strings.ToUpper(args[0]), args[1])
		},
	}
	fs := cmd.Flags()
	redisFlags(fs, cfg)
	bindEnv(v, fs)
	return cmd
}

type drawingLoader interface {
	LoadDrawing(ctx context.Context, accessCode, teamID string) (*teamchallenge.Drawing, error)
}

func printDrawing(ctx context.Context, w io.Writer, store drawingLoader, code, teamID string) error {
	d, err := store.LoadDrawing(ctx, code, teamID)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("no saved drawing for team %s in session %s", teamID, code)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
