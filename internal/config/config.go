// Package config resolves runtime settings from flags, the environment, and
// an optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEmailDomains are the institutional suffixes accepted at sign-up.
const DefaultEmailDomains = "iiit.ac.in,students.iiit.ac.in,research.iiit.ac.in"

// Config holds everything cmd/bazar needs to start.
type Config struct {
	DBPath  string
	Addr    string
	LogPath string

	EmailDomains []string
	JWTSecret    string

	RedisAddr string
	CacheTTL  time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	SweepInterval      time.Duration
	ReservationTimeout time.Duration

	AIAPIKey   string
	AIEndpoint string
}

const usage = `Usage: bazar [flags]

Flags:
  -d, -db <path>               SQLite database path (env BAZAR_DB, default: bazar.sqlite3)
  -a, -addr <host:port>        listen address (env BAZAR_ADDR, default: :8080)
  -l, -log <path>              log file path (env BAZAR_LOG, default: stdout/stderr only)
      -redis <host:port>       listing cache (env BAZAR_REDIS_ADDR, default: disabled)
      -kafka <b1,b2>           event brokers (env BAZAR_KAFKA_BROKERS, default: disabled)
      -sweep <duration>        reservation sweep interval, 0 disables (env BAZAR_SWEEP_INTERVAL, default: 1m)
  -h, -help                    show this help and exit

Environment only:
  BAZAR_EMAIL_DOMAINS          accepted email domains (default: ` + DefaultEmailDomains + `)
  BAZAR_JWT_SECRET             token signing secret (default: generated and stored in the database)
  BAZAR_KAFKA_TOPIC            event topic (default: bazar.orders)
  BAZAR_CACHE_TTL              listing cache lifetime (default: 60s)
  BAZAR_RESERVATION_TIMEOUT    age after which orphaned reservations are released (default: 30m)
  BAZAR_AI_API_KEY             chat assistant API key (default: chat assistant disabled)
  BAZAR_AI_ENDPOINT            chat assistant generateContent URL (default: Gemini 1.5 Flash)
`

// Load reads .env from the working directory when present, then parses args.
func Load(args []string, out io.Writer) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return Parse(args, os.Getenv, out)
}

// Parse builds a Config from args, falling back to getenv for defaults.
// It returns flag.ErrHelp when -h is given.
func Parse(args []string, getenv func(string) string, out io.Writer) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(env(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	cfg := &Config{
		EmailDomains:       splitList(env("BAZAR_EMAIL_DOMAINS", DefaultEmailDomains)),
		JWTSecret:          getenv("BAZAR_JWT_SECRET"),
		KafkaTopic:         env("BAZAR_KAFKA_TOPIC", "bazar.orders"),
		CacheTTL:           duration("BAZAR_CACHE_TTL", "60s"),
		ReservationTimeout: duration("BAZAR_RESERVATION_TIMEOUT", "30m"),
		AIAPIKey:           strings.TrimSpace(getenv("BAZAR_AI_API_KEY")),
		AIEndpoint:         env("BAZAR_AI_ENDPOINT", ""),
	}
	sweep := duration("BAZAR_SWEEP_INTERVAL", "1m")
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	flags := flag.NewFlagSet("bazar", flag.ContinueOnError)
	flags.SetOutput(out)
	flags.Usage = func() { fmt.Fprint(out, usage) }

	dbDefault := env("BAZAR_DB", "bazar.sqlite3")
	flags.StringVar(&cfg.DBPath, "db", dbDefault, "")
	flags.StringVar(&cfg.DBPath, "d", dbDefault, "")

	addrDefault := env("BAZAR_ADDR", ":8080")
	flags.StringVar(&cfg.Addr, "addr", addrDefault, "")
	flags.StringVar(&cfg.Addr, "a", addrDefault, "")

	logDefault := env("BAZAR_LOG", "")
	flags.StringVar(&cfg.LogPath, "log", logDefault, "")
	flags.StringVar(&cfg.LogPath, "l", logDefault, "")

	flags.StringVar(&cfg.RedisAddr, "redis", env("BAZAR_REDIS_ADDR", ""), "")

	var brokers string
	flags.StringVar(&brokers, "kafka", env("BAZAR_KAFKA_BROKERS", ""), "")

	flags.DurationVar(&cfg.SweepInterval, "sweep", sweep, "")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		flags.Usage()
		return nil, fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}
	cfg.KafkaBrokers = splitList(brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("database path must not be empty"))
	}
	if c.Addr == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}
	if len(c.EmailDomains) == 0 {
		errs = append(errs, errors.New("at least one email domain is required"))
	}
	for _, d := range c.EmailDomains {
		if strings.HasPrefix(d, ".") || strings.Contains(d, "@") {
			errs = append(errs, fmt.Errorf("invalid email domain %q", d))
		}
	}
	if c.SweepInterval < 0 {
		errs = append(errs, errors.New("sweep interval must not be negative"))
	}
	if c.ReservationTimeout <= 0 {
		errs = append(errs, errors.New("reservation timeout must be positive"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("cache TTL must be positive"))
	}
	if c.AIEndpoint != "" && !strings.HasPrefix(c.AIEndpoint, "https://") && !strings.HasPrefix(c.AIEndpoint, "http://") {
		errs = append(errs, fmt.Errorf("invalid assistant endpoint %q", c.AIEndpoint))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("kafka topic must be set when brokers are configured"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
