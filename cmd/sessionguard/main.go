// sessionguard serves the credential lifecycle HTTP API.
//
// Configuration comes from an optional YAML file (--config), then
// SESSIONGUARD_* environment variables, then flags. With --dev-redis the
// server runs against an in-process miniredis and, when no signing key is
// configured, an ephemeral Ed25519 key; nothing survives a restart.
//
// Accounts live in an in-memory directory seeded with --seed
// identifier:password[:mfa]. Accounts marked mfa get a TOTP secret whose
// provisioning URI is logged at startup. Outbound mail is written to the log.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/accounts"
	"github.com/MrEthical07/sessionguard/httpapi"
	"github.com/MrEthical07/sessionguard/metrics/export/prometheus"
	"github.com/MrEthical07/sessionguard/password"
)

type options struct {
	configPath     string
	listen         string
	redisAddr      string
	devRedis       bool
	logLevel       string
	logFormat      string
	seeds          []string
	trustedGateway bool
	auditLog       bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("sessionguard", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	flagSet.StringVar(&opts.listen, "listen", ":8080", "HTTP listen address")
	flagSet.StringVar(&opts.redisAddr, "redis-addr", "", "redis address (default: REDIS_ADDR)")
	flagSet.BoolVar(&opts.devRedis, "dev-redis", false, "run against an in-process miniredis")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	flagSet.StringArrayVar(&opts.seeds, "seed", nil, "seed account identifier:password[:mfa] (repeatable)")
	flagSet.BoolVar(&opts.trustedGateway, "trusted-gateway", false, "authenticate routes in trusted-gateway mode")
	flagSet.BoolVar(&opts.auditLog, "audit-log", false, "write audit events to the log")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	logger, err := newLogger(opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	client, cleanup, err := connectRedis(opts, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}
	directory := accounts.NewDirectory(hasher)
	totpCfg := accounts.DefaultTOTPConfig()
	totpCfg.Issuer = cfg.Notification.AppName
	verifier, err := accounts.NewTOTP(totpCfg, directory)
	if err != nil {
		return err
	}
	if err := seedAccounts(directory, verifier, opts.seeds, logger); err != nil {
		return err
	}

	builder := sessionguard.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountProvider(directory).
		WithCodeVerifier(verifier).
		WithMailTransport(logTransport(logger)).
		WithLogger(logger)
	if opts.auditLog {
		builder.WithAuditSink(sessionguard.NewSlogSink(logger.With("component", "audit")))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := engine.Ping(ctx); err != nil {
		return err
	}

	apiOpts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithPasswordSetter(directory),
	}
	if opts.trustedGateway {
		apiOpts = append(apiOpts, httpapi.WithTrustedGateway())
	}

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.New(engine, apiOpts...))
	mux.Handle("GET /metrics", prometheus.New(engine).Handler())

	server := &http.Server{
		Addr:              opts.listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sessionguard: listening", "addr", opts.listen, "validation_mode", cfg.Validation.Mode.String())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("sessionguard: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}

func loadConfig(opts options) (sessionguard.Config, error) {
	cfg := sessionguard.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := sessionguard.LoadConfigFile(opts.configPath)
		if err != nil {
			return sessionguard.Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return sessionguard.Config{}, err
	}
	if opts.trustedGateway {
		cfg.Validation.Mode = sessionguard.ModeTrustedGateway
		if cfg.Validation.GatewaySecret == "" {
			slog.Warn("sessionguard: trusted gateway mode without a gateway secret rejects every request")
		}
	}

	if len(cfg.JWT.PrivateKey) == 0 && opts.devRedis && cfg.JWT.SigningMethod == "ed25519" {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return sessionguard.Config{}, err
		}
		cfg.JWT.PrivateKey = priv
		cfg.JWT.PublicKey = pub
		slog.Warn("sessionguard: using an ephemeral signing key; tokens will not survive a restart")
	}
	return cfg, nil
}

func connectRedis(opts options, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if opts.devRedis {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Warn("sessionguard: using in-process miniredis", "addr", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		return nil, nil, errors.New("no redis configured: set --redis-addr, REDIS_ADDR or --dev-redis")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: strings.Split(addr, ",")})
	return client, func() { _ = client.Close() }, nil
}
