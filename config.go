/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind          string
	catalog       string
	envFile       string
	metrics       bool
	port          int
	prefix        string
	profile       bool
	rateBurst     int
	rateLimit     float64
	reapInterval  time.Duration
	redisAddr     string
	redisDB       int
	redisPassword string
	redisPrefix   string
	roomTTL       time.Duration
	secret        string
	store         string
	tlsCert       string
	tlsKey        string
	tokenTTL      time.Duration
	totalRounds   int
	verbose       bool
	version       bool

	log zerolog.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}

	switch c.store {
	case "memory":
	case "redis":
		if c.redisAddr == "" {
			return errors.New("--redis-addr is required with --store redis")
		}
	default:
		return fmt.Errorf("invalid store (must be memory or redis): %q", c.store)
	}

	if c.roomTTL < 0 {
		return fmt.Errorf("invalid room ttl (must not be negative): %s", c.roomTTL)
	}
	if c.roomTTL > 0 && c.reapInterval <= 0 {
		return fmt.Errorf("invalid reap interval (must be positive): %s", c.reapInterval)
	}
	if c.tokenTTL <= 0 {
		return fmt.Errorf("invalid token ttl (must be positive): %s", c.tokenTTL)
	}
	if c.totalRounds < 1 {
		return fmt.Errorf("invalid total rounds (must be at least 1): %d", c.totalRounds)
	}
	if c.rateLimit < 0 {
		return fmt.Errorf("invalid rate limit (must not be negative): %v", c.rateLimit)
	}
	if c.rateLimit > 0 && c.rateBurst < 1 {
		return fmt.Errorf("invalid rate burst (must be at least 1): %d", c.rateBurst)
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// applyEnv copies RUSTAM_* variables onto any flag not set on the command
// line.
func applyEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("RUSTAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "rustam",
		Short:         "Serves the Rustam party game and keeps every device in a room in sync.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.envFile != "" {
				if err := godotenv.Load(cfg.envFile); err != nil {
					return fmt.Errorf("loading %s: %w", cfg.envFile, err)
				}
				applyEnv(v, cmd.Flags())
			}

			if err := cfg.validate(); err != nil {
				return err
			}

			cfg.log = newLogger(cfg, cmd.ErrOrStderr())

			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: RUSTAM_BIND)")
	fs.StringVar(&cfg.catalog, "catalog", "", "path to a game data file to use instead of the built-in one (env: RUSTAM_CATALOG)")
	fs.StringVar(&cfg.envFile, "env-file", "", "load environment variables from this file before reading settings (env: RUSTAM_ENV_FILE)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "serve prometheus metrics at /metrics (env: RUSTAM_METRICS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: RUSTAM_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: RUSTAM_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: RUSTAM_PROFILE)")
	fs.IntVar(&cfg.rateBurst, "rate-burst", 10, "requests a single address may make at once when creating or joining rooms (env: RUSTAM_RATE_BURST)")
	fs.Float64Var(&cfg.rateLimit, "rate-limit", 1, "sustained requests per second per address for creating or joining rooms, 0 to disable (env: RUSTAM_RATE_LIMIT)")
	fs.DurationVar(&cfg.reapInterval, "reap-interval", 5*time.Minute, "how often to look for expired rooms (env: RUSTAM_REAP_INTERVAL)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "localhost:6379", "redis server address (env: RUSTAM_REDIS_ADDR)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database number (env: RUSTAM_REDIS_DB)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: RUSTAM_REDIS_PASSWORD)")
	fs.StringVar(&cfg.redisPrefix, "redis-prefix", "rustam:", "prefix for every redis key and channel (env: RUSTAM_REDIS_PREFIX)")
	fs.DurationVar(&cfg.roomTTL, "room-ttl", 12*time.Hour, "time after creation before a room is deleted, 0 to keep rooms forever (env: RUSTAM_ROOM_TTL)")
	fs.StringVar(&cfg.secret, "secret", "", "key used to sign device tokens; random on each start if unset (env: RUSTAM_SECRET)")
	fs.StringVar(&cfg.store, "store", "memory", "shared state backend, memory or redis (env: RUSTAM_STORE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: RUSTAM_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: RUSTAM_TLS_KEY)")
	fs.DurationVar(&cfg.tokenTTL, "token-ttl", 30*24*time.Hour, "lifetime of a device token (env: RUSTAM_TOKEN_TTL)")
	fs.IntVar(&cfg.totalRounds, "total-rounds", 4, "rounds per game when the host does not choose (env: RUSTAM_TOTAL_ROUNDS)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: RUSTAM_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: RUSTAM_VERSION)")

	applyEnv(v, fs)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("rustam v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
