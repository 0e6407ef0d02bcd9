package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/credential"
	"github.com/MrEthical07/authclient/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type options struct {
	envPrefix string
	storePath string
	redisAddr string
	logLevel  string
	logFormat string
	timeout   time.Duration
}

// app is built once per invocation by the root PersistentPreRunE.
type app struct {
	client  *authclient.Client
	log     *slog.Logger
	cleanup []func()
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func newRootCmd() (*cobra.Command, *app) {
	var (
		opts options
		a    = &app{}
	)

	root := &cobra.Command{
		Use:           "authclient",
		Short:         "Call the marketplace API with automatically refreshed credentials",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion":
				return nil
			}
			return a.init(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.envPrefix, "env-prefix", authclient.EnvPrefix, "environment variable prefix")
	flags.StringVar(&opts.storePath, "store", defaultStorePath(), "credential file")
	flags.StringVar(&opts.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "keep credentials in redis instead of --store")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "text or json")
	flags.DurationVar(&opts.timeout, "timeout", 0, "overall command timeout (0 = none)")

	root.AddCommand(
		loginCmd(a),
		socialLoginCmd(a),
		requestCmd(a),
		whoamiCmd(a),
		logoutCmd(a),
	)
	return root, a
}

func (a *app) init(ctx context.Context, opts options) error {
	a.log = logger.New(logger.Config{
		Level:  logger.Level(opts.logLevel),
		Format: logger.Format(opts.logFormat),
		Writer: os.Stderr,
	})

	cfg, err := authclient.LoadConfigFromEnv(opts.envPrefix)
	if err != nil {
		return err
	}

	b := authclient.New().
		WithConfig(cfg).
		WithLogger(a.log).
		WithSessionExpiredHandler(func(context.Context, error) {
			fmt.Fprintln(os.Stderr, "session expired, run `authclient login` again")
		})

	if opts.redisAddr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{opts.redisAddr}})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("connect redis %s: %w", opts.redisAddr, err)
		}
		a.cleanup = append(a.cleanup, func() { _ = rdb.Close() })
		b.WithRedis(rdb)
	} else {
		store, err := credential.OpenFileStore(opts.storePath)
		if err != nil {
			return err
		}
		b.WithStore(store)
	}

	a.client, err = b.Build()
	if err != nil {
		return err
	}
	a.cleanup = append(a.cleanup, a.client.Close)
	return nil
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".authclient-credentials.json"
	}
	return filepath.Join(dir, "authclient", "credentials.json")
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, _ := cmd.Flags().GetDuration("timeout")
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// describe turns a client error into one line for the terminal.
func describe(err error) error {
	e, ok := authclient.AsError(err)
	if !ok {
		return err
	}
	switch {
	case e.Status != 0 && e.Code != "":
		return fmt.Errorf("%s: %d %s: %s", e.Kind, e.Status, e.Code, e.Message)
	case e.Status != 0:
		return fmt.Errorf("%s: %d: %s", e.Kind, e.Status, e.Message)
	default:
		return fmt.Errorf("%s: %s", e.Kind, e.Message)
	}
}
