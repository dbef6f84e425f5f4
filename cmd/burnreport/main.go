/*
main.go - Batch entry point

PURPOSE:
  Reads the five input CSVs from a directory, runs the pipeline once and
  writes the five fact tables. No database is involved.

COMMAND-LINE FLAGS:
  -data     Directory holding the input CSVs (required)
  -out      Output directory for the fact table CSVs (default: -data)
  -xlsx     Also write every table into one workbook at this path
  -workers  Concurrent project partitions, overrides engine.workers
  -config   YAML configuration file (optional, engine and logging only)

EXAMPLES:
  ./burnreport -data ./input
  ./burnreport -data ./input -out ./facts -xlsx ./facts/burn.xlsx -workers 4

SEE ALSO:
  - dataset/csv.go: Input file names and columns
  - dataset/writer.go: Output files
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/burn-engine/config"
	"github.com/warp/burn-engine/dataset"
	"github.com/warp/burn-engine/evm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "burnreport: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dataDir := flag.String("data", "", "directory holding the input CSVs")
	outDir := flag.String("out", "", "output directory (default: -data)")
	xlsxPath := flag.String("xlsx", "", "also write a workbook to this path")
	workers := flag.Int("workers", -1, "concurrent project partitions (overrides config)")
	configPath := flag.String("config", "", "YAML configuration file")
	flag.Parse()

	if *dataDir == "" {
		flag.Usage()
		return errors.New("-data is required")
	}
	if *outDir == "" {
		*outDir = *dataDir
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *workers >= 0 {
		cfg.Engine.Workers = *workers
	}
	logger, err := config.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}

	ds, err := dataset.NewLoader(logger).LoadDir(*dataDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline := evm.NewPipeline(cfg.Engine.Params())
	pipeline.Workers = cfg.Engine.Workers
	pipeline.Logger = logger
	result, err := pipeline.Run(ctx, ds)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := dataset.WriteDir(*outDir, result); err != nil {
		return err
	}
	if *xlsxPath != "" {
		if err := dataset.SaveXLSX(*xlsxPath, result); err != nil {
			return err
		}
	}

	logger.Info("fact tables written",
		slog.String("out", *outDir),
		slog.String("xlsx", *xlsxPath),
		slog.Int("weekly_rows", len(result.Weekly)),
		slog.Int("closeouts", len(result.Closeouts)),
		slog.Int("project_weeks", len(result.ProjectWeek)))
	return nil
}
