// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/cache"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/compliance"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/diagnostic"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/engine"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/opener"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/operator"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/render"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/report"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/rules"
	"github.com/AleutianAI/gridcheck/pkg/logging"
)

// version is stamped by the release build.
var version = "dev"

// --- Global Command Variables ---
var (
	configPath     string
	workers        int
	cacheDir       string
	noCache        bool
	jsonOutput     bool
	logLevel       string
	quiet          bool
	operatorBinary string
	checkerBinary  string

	// exitCode carries the run verdict out to main.
	exitCode int

	rootCmd = &cobra.Command{
		Use:   "gridcheck",
		Short: "Quality-control rule evaluation for climate datasets",
		Long: `gridcheck evaluates declarative quality-control rules against
NetCDF and GRIB datasets: statistical bounds, structural checks,
missing-data budgets, and convention compliance.`,
		SilenceUsage: true,
	}

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Evaluate a rule configuration against its datasets",
		RunE:  runCheck,
	}

	templateCmd = &cobra.Command{
		Use:   "template",
		Short: "Print a starter rule configuration",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), rules.Template())
		},
	}

	checksCmd = &cobra.Command{
		Use:   "checks",
		Short: "List the available diagnostic checks",
		Run: func(cmd *cobra.Command, _ []string) {
			registry := buildRegistry("stub", "stub", "")
			for _, id := range registry.IDs() {
				spec, _ := registry.Lookup(id)
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", id, spec.Summary)
			}
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the gridcheck version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "gridcheck", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress log output")

	checkCmd.Flags().StringVarP(&configPath, "config", "c", "gridcheck.yaml",
		"rule configuration document")
	checkCmd.Flags().IntVar(&workers, "workers", 0,
		"parallel dataset evaluations (overrides the document)")
	checkCmd.Flags().StringVar(&cacheDir, "cache-dir", "",
		"persistent diagnostic cache directory (overrides the document)")
	checkCmd.Flags().BoolVar(&noCache, "no-cache", false,
		"disable the persistent diagnostic cache")
	checkCmd.Flags().BoolVar(&jsonOutput, "json", false,
		"emit the report as JSON")
	checkCmd.Flags().StringVar(&operatorBinary, "operator-bin", "cdo",
		"climate-operator binary for GRIB conversion and descriptions")
	checkCmd.Flags().StringVar(&checkerBinary, "checker-bin", "cfchecks",
		"convention compliance checker binary")

	rootCmd.AddCommand(checkCmd, templateCmd, checksCmd, versionCmd)
}

// buildRegistry assembles the diagnostic catalog for the configured
// external binaries.
func buildRegistry(checkerBin, operatorBin, complianceVersion string) *diagnostic.Registry {
	opts := diagnostic.CatalogOptions{ComplianceVersion: complianceVersion}
	if checkerBin != "" {
		opts.Checker = &compliance.ExecChecker{Binary: checkerBin}
	}
	if operatorBin != "" {
		opts.Tool = operator.NewExecTool(operatorBin)
	}
	return diagnostic.Catalog(opts)
}

// runCheck is the main evaluation entrypoint.
func runCheck(cmd *cobra.Command, _ []string) error {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		Service: "gridcheck",
		Quiet:   quiet,
	})
	defer logger.Close()

	cfg, err := rules.Load(configPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg)

	format, err := dataset.ParseFormat(cfg.Format)
	if err != nil {
		return &rules.ConfigurationError{Path: configPath, Err: err}
	}

	registry := buildRegistry(checkerBinary, operatorBinary, cfg.ComplianceVersion)
	if err := registry.ValidateConfig(cfg); err != nil {
		return err
	}

	open, err := opener.ForFormat(format, operatorBinary)
	if err != nil {
		return &rules.ConfigurationError{Path: configPath, Err: err}
	}

	c, err := cache.Open(cache.Config{Dir: cfg.Defaults.CacheDir, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("cache close failed", "error", err)
		}
	}()

	evaluator := engine.NewEvaluator(registry, c, cfg.Defaults, logger)
	runner := engine.NewRunner(open, evaluator, logger)
	rep, err := runner.Run(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	stats := c.Stats()
	logger.Debug("cache stats",
		"hot_hits", stats.HotHits, "store_hits", stats.StoreHits, "misses", stats.Misses)

	r := render.New(os.Stdout)
	if jsonOutput {
		if err := r.JSON(rep); err != nil {
			return err
		}
	} else {
		r.Report(rep)
	}

	exitCode = rep.ExitCode()
	if !rep.Passed() {
		logger.Warn("run failed",
			"failed", rep.Counts[report.StatusFailed],
			"errored", rep.Counts[report.StatusErrored])
	}
	return nil
}

// applyOverrides folds command-line flags into the loaded document.
func applyOverrides(cfg *rules.Config) {
	if workers > 0 {
		cfg.Defaults.Workers = workers
	}
	if cacheDir != "" {
		cfg.Defaults.CacheDir = cacheDir
	}
	if noCache {
		cfg.Defaults.CacheDir = ""
	}
}
