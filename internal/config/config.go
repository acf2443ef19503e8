package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/DoyleJ11/liars-table/internal/transport"
)

const EnvPrefix = "LIARSTABLE"

type Mode string

const (
	ModePush Mode = "push"
	ModePoll Mode = "poll"
)

type Config struct {
	Mode           string
	WSURL          string
	PollURL        string
	CommandURL     string
	ReconnectDelay time.Duration
	PollInterval   time.Duration
	WriteTimeout   time.Duration
	Table          string
	Listen         string
	StoreDSN       string
	LogLevel       string
	Dev            bool
}

func (c *Config) Validate() error {
	switch Mode(c.Mode) {
	case ModePush:
		if err := checkURL(c.WSURL, "--ws-url", "ws", "wss"); err != nil {
			return err
		}
	case ModePoll:
		if err := checkURL(c.PollURL, "--poll-url", "http", "https"); err != nil {
			return err
		}
		if err := checkURL(c.CommandURL, "--command-url", "http", "https"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid mode (must be push or poll): %q", c.Mode)
	}

	if strings.TrimSpace(c.Table) == "" {
		return errors.New("--table must not be empty")
	}
	if c.ReconnectDelay <= 0 || c.PollInterval <= 0 || c.WriteTimeout <= 0 {
		return errors.New("--reconnect-delay, --poll-interval and --write-timeout must be positive")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	return nil
}

// TransportOptions carries the timing settings into a transport.
func (c *Config) TransportOptions(opts transport.Options) transport.Options {
	opts.ReconnectDelay = c.ReconnectDelay
	opts.PollInterval = c.PollInterval
	opts.WriteTimeout = c.WriteTimeout
	return opts
}

func checkURL(raw, flag string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", flag)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", flag, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("invalid %s (want %s): %q", flag, strings.Join(schemes, " or "), raw)
}

// BindFlags registers every setting on fs.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Mode, "mode", "m", string(ModePush), "transport to the authority: push or poll (env: LIARSTABLE_MODE)")
	fs.StringVar(&cfg.WSURL, "ws-url", "ws://localhost:8080/ws", "authority websocket url (env: LIARSTABLE_WS_URL)")
	fs.StringVar(&cfg.PollURL, "poll-url", "http://localhost:8080/api/gamestate", "authority snapshot url (env: LIARSTABLE_POLL_URL)")
	fs.StringVar(&cfg.CommandURL, "command-url", "http://localhost:8080/api/command", "authority command url (env: LIARSTABLE_COMMAND_URL)")
	fs.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", transport.DefaultReconnectDelay, "wait before reconnecting (env: LIARSTABLE_RECONNECT_DELAY)")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", transport.DefaultPollInterval, "snapshot poll interval (env: LIARSTABLE_POLL_INTERVAL)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", transport.DefaultWriteTimeout, "per-message send timeout (env: LIARSTABLE_WRITE_TIMEOUT)")
	fs.StringVarP(&cfg.Table, "table", "t", "main", "table to join (env: LIARSTABLE_TABLE)")
	fs.StringVarP(&cfg.Listen, "listen", "l", "127.0.0.1:8090", "address for the view api (env: LIARSTABLE_LISTEN)")
	fs.StringVar(&cfg.StoreDSN, "store-dsn", "", "postgres dsn; empty keeps state in memory (env: LIARSTABLE_STORE_DSN)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "debug, info, warn or error (env: LIARSTABLE_LOG_LEVEL)")
	fs.BoolVar(&cfg.Dev, "dev", false, "human-readable logs (env: LIARSTABLE_DEV)")
}

// ApplyEnv loads an optional .env file, then fills every flag the user did
// not set from LIARSTABLE_* variables.
func ApplyEnv(fs *pflag.FlagSet, envFiles ...string) error {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if serr := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); serr != nil && err == nil {
				err = fmt.Errorf("env %s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), serr)
			}
		}
	})
	return err
}
