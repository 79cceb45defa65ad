// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command ridgeline starts the supplement orchestrator HTTP server.
//
// # Usage
//
//	# Build
//	go build -o ridgeline ./cmd/ridgeline
//
//	# Run with defaults
//	./ridgeline serve
//
//	# Run with a config file
//	./ridgeline serve --config /etc/ridgeline/config.yaml
//
// Environment variables (RIDGELINE_*) override file values; see the
// config package for the full list.
package main

import (
	"fmt"
	"log"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ridgelineai/ridgeline/pkg/logging"
	"github.com/ridgelineai/ridgeline/services/orchestrator"
	"github.com/ridgelineai/ridgeline/services/orchestrator/config"
)

// version is stamped by the build via -ldflags.
var version = "dev"

var (
	configPath string
	logDir     string
	logJSON    bool

	rootCmd = &cobra.Command{
		Use:   "ridgeline",
		Short: "AI supplement pipeline for roofing contractors",
		Long: `Ridgeline analyzes job-site photos against carrier insurance
estimates and assembles defensible supplement packages.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := logging.New(logging.Config{
				Level:   logging.ParseLevel(cfg.Observability.LogLevel),
				LogDir:  logDir,
				Service: "orchestrator",
				JSON:    logJSON,
			})
			defer logger.Close()
			logger.SetAsDefault()

			svc, err := orchestrator.New(cfg)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ridgeline %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
		},
	}
)

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	serveCmd.Flags().StringVar(&logDir, "log-dir", "", "directory for JSON log files (disabled when empty)")
	serveCmd.Flags().BoolVar(&logJSON, "log-json", false, "emit JSON logs on stderr")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
