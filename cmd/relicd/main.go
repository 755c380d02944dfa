package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relicmarket/config"
	"relicmarket/core"
	"relicmarket/observability/logging"
	"relicmarket/rpc"
	"relicmarket/storage"
)

const genesisPathEnv = "RELIC_GENESIS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides RELIC_GENESIS and config GenesisFile)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("RELIC_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "path", *configFile, "err", err)
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Environment
	}

	logger := logging.Setup("relicd", env, logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})

	genesisPath := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	node, err := core.NewNode(db, genesisPath, logger)
	if err != nil {
		logger.Error("failed to start node", "err", err)
		os.Exit(1)
	}

	if cfg.MetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("serving metrics", "addr", cfg.MetricsAddress)
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
	}

	server := rpc.NewServer(node)
	logger.Info("serving JSON-RPC", "addr", cfg.RPCAddress, "network", cfg.NetworkName)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", "err", err)
		os.Exit(1)
	}
}

// resolveGenesisPath prefers the CLI flag, then the environment, then the
// configuration file.
func resolveGenesisPath(flagValue, configValue string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if fromEnv, ok := lookup(genesisPathEnv); ok {
		if trimmed := strings.TrimSpace(fromEnv); trimmed != "" {
			return trimmed
		}
	}
	return strings.TrimSpace(configValue)
}
