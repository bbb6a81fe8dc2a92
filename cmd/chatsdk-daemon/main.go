package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chatsdk/go-backend/internal/composition/daemon"
	"chatsdk/go-backend/internal/config"

	"github.com/spf13/pflag"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chatsdk-daemon: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		rpcAddr     string
		rpcToken    string
		dataDir     string
		transport   string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("chatsdk-daemon", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config.yaml (default: configs/config.yaml when present)")
	flagSet.StringVar(&rpcAddr, "rpc-addr", "", "JSON-RPC listen address (overrides rpc.addr)")
	flagSet.StringVar(&rpcToken, "rpc-token", "", `RPC token, or "auto" to generate one (overrides rpc.token)`)
	flagSet.StringVar(&dataDir, "data-dir", "", "engine data directory (overrides engine.dataDir)")
	flagSet.StringVar(&transport, "transport", "", "engine transport: go-waku | mock (overrides engine.transport)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug | info | warn | error (overrides log.level)")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("chatsdk-daemon version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if rpcAddr != "" {
		cfg.RPC.Addr = rpcAddr
	}
	if rpcToken != "" {
		cfg.RPC.Token = rpcToken
	}
	if dataDir != "" {
		cfg.Engine["dataDir"] = dataDir
	}
	if transport != "" {
		cfg.Engine["transport"] = transport
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	d, err := daemon.Build(cfg, daemon.Options{})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}
