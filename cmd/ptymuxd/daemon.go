package main

import (
	"fmt"
	"log"
	"os"

	"github.com/chriswa/ptymuxd/internal/config"
	"github.com/chriswa/ptymuxd/internal/server"
	"github.com/chriswa/ptymuxd/internal/sessionstore"
)

// buildDaemon assembles a Server from the on-disk config and session
// store, logging to ptymuxd.log rather than the (detached) terminal.
func buildDaemon() (*server.Server, *log.Logger, config.Config) {
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	logger := log.New(logFile, "", log.Ldate|log.Ltime|log.Lmicroseconds)

	cfgPath, err := config.DefaultPath(profileName)
	if err != nil {
		logger.Fatalf("resolving config path: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("loading config: %v", err)
	}

	stateDir, err := sessionstore.StateDir(profileName)
	if err != nil {
		logger.Fatalf("resolving session state dir: %v", err)
	}
	store, err := sessionstore.New(stateDir)
	if err != nil {
		logger.Fatalf("opening session store: %v", err)
	}

	return server.New(cfg, store, logger), logger, cfg
}
