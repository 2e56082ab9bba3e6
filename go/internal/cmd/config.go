package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds everything the binary reads from flags and LIVEQUIZ_* variables
type Config struct {
	bind      string
	port      int
	logLevel  string
	logJSON   bool
	publicURL string

	jwtSecret string
	jwtIssuer string
	tokenTTL  time.Duration

	catalogFile string

	natsURL    string
	natsPrefix string

	redisAddr     string
	redisPassword string
	redisDB       int

	heartbeatInterval time.Duration
	retention         time.Duration
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.jwtSecret == "" {
		return errors.New("--jwt-secret is required (env: LIVEQUIZ_JWT_SECRET)")
	}
	if c.heartbeatInterval <= 0 {
		return fmt.Errorf("invalid heartbeat interval: %s", c.heartbeatInterval)
	}
	return nil
}

func setupLogging(cfg *Config) error {
	level, err := zerolog.ParseLevel(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.logLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.logJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return nil
}

// bindEnv lets LIVEQUIZ_<FLAG> fill any flag not given on the command line
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newRootCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LIVEQUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "livequiz",
		Short:         "Real-time classroom quiz sessions.",
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cfg)
		},
	}

	pfs := root.PersistentFlags()
	pfs.StringVar(&cfg.logLevel, "log-level", "info", "zerolog level (env: LIVEQUIZ_LOG_LEVEL)")
	pfs.BoolVar(&cfg.logJSON, "log-json", false, "write JSON logs instead of console output (env: LIVEQUIZ_LOG_JSON)")
	pfs.StringVar(&cfg.catalogFile, "catalog", "", "YAML catalog file (env: LIVEQUIZ_CATALOG)")
	pfs.StringVar(&cfg.jwtSecret, "jwt-secret", "", "HS256 signing secret (env: LIVEQUIZ_JWT_SECRET)")
	pfs.StringVar(&cfg.jwtIssuer, "jwt-issuer", "livequiz", "token issuer (env: LIVEQUIZ_JWT_ISSUER)")
	pfs.DurationVar(&cfg.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of issued tokens (env: LIVEQUIZ_TOKEN_TTL)")
	bindEnv(v, pfs)

	root.AddCommand(newServeCmd(cfg, v), newMigrateCmd(cfg), newTokenCmd(cfg), newDrawingCmd(cfg, v))

	root.CompletionOptions.HiddenDefaultCmd = true
	root.SetVersionTemplate("livequiz v{{.Version}}\n")
	return root
}

func newServeCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: LIVEQUIZ_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: LIVEQUIZ_PORT)")
	fs.StringVar(&cfg.publicURL, "public-url", "", "base URL encoded in join QR codes (env: LIVEQUIZ_PUBLIC_URL)")
	fs.StringVar(&cfg.natsURL, "nats-url", "", "NATS server for event relay and the durable outbox (env: LIVEQUIZ_NATS_URL)")
	fs.StringVar(&cfg.natsPrefix, "nats-prefix", "livequiz", "subject prefix for relayed topics (env: LIVEQUIZ_NATS_PREFIX)")
	redisFlags(fs, cfg)
	fs.DurationVar(&cfg.heartbeatInterval, "heartbeat-interval", 10*time.Second, "expected participant heartbeat period (env: LIVEQUIZ_HEARTBEAT_INTERVAL)")
	fs.DurationVar(&cfg.retention, "retention", 30*time.Minute, "how long completed sessions stay readable (env: LIVEQUIZ_RETENTION)")
	bindEnv(v, fs)
	return cmd
}

func redisFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "Redis address for saved drawings (env: LIVEQUIZ_REDIS_ADDR)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "Redis password (env: LIVEQUIZ_REDIS_PASSWORD)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "Redis database (env: LIVEQUIZ_REDIS_DB)")
}
