// Command fhirsub-server runs the subscription notification server.
//
// Usage:
//
//	fhirsub-server [flags]
//
// Flags:
//
//	--config string        Configuration file (default $FHIRSUB_CONFIG)
//	--listen string        Listen address, overrides the config file
//	--db string            SQLite database file, overrides the config file
//	--seed string          YAML file of resources written at startup
//	--log-level string     debug, info, warn or error
//	--protocol-log string  CBOR protocol log file
//	--advertise            Advertise the server over mDNS
//	--instance string      mDNS instance name
//	--hash-token string    Print the bcrypt hash of a token for token_hash and exit
//
// Examples:
//
//	# In-memory server with a few subscriptions
//	fhirsub-server --listen :8080 --seed subscriptions.yaml
//
//	# Persistent server with protocol capture
//	fhirsub-server --config /etc/fhirsub/server.yaml --protocol-log /var/log/fhirsub.flog
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/openclinic/fhirsub/pkg/config"
	"github.com/openclinic/fhirsub/pkg/service"
	"github.com/openclinic/fhirsub/pkg/transport"
)

var (
	configFile  = flag.String("config", "", "Configuration file path (default $"+config.EnvVar+")")
	listen      = flag.String("listen", "", "Listen address")
	database    = flag.String("db", "", "SQLite database file")
	seedFile    = flag.String("seed", "", "YAML file of resources to load at startup")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "Protocol log file")
	advertise   = flag.Bool("advertise", false, "Advertise over mDNS")
	instance    = flag.String("instance", "", "mDNS instance name")
	hashToken   = flag.String("hash-token", "", "Print the bcrypt hash of a token and exit")
)

func main() {
	flag.Parse()

	if *hashToken != "" {
		hash, err := transport.HashToken(*hashToken)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case *configFile != "":
		cfg, err = config.LoadFile(*configFile)
	case os.Getenv(config.EnvVar) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	return cfg, nil
}

// applyFlags overrides cfg with the flags that were set.
func applyFlags(cfg *config.Config) {
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *database != "" {
		cfg.Database = *database
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *protocolLog != "" {
		cfg.ProtocolLog = *protocolLog
	}
	if *advertise {
		cfg.Discovery.Enabled = true
	}
	if *instance != "" {
		cfg.Discovery.Instance = *instance
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	svc, err := service.New(cfg, service.Options{Logger: logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *seedFile != "" {
		n, err := seed(ctx, svc, *seedFile)
		if err != nil {
			return err
		}
		logger.Info("seeded resources", "count", n, "file", *seedFile)
	}

	return svc.Run(ctx)
}
