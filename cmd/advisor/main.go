package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/navsight/advisor/internal/dsl"
	"github.com/navsight/advisor/internal/engine"
	"github.com/navsight/advisor/internal/logging"
	"github.com/navsight/advisor/internal/rules"
	"github.com/navsight/advisor/pkg/schema"
)

const usage = `advisor - deterministic rule-to-action engine

Usage:
  advisor evaluate --rules <file> --facts <file>   evaluate one fact snapshot
  advisor validate --rules <file>                  check a rule file and exit
  advisor watch    --rules <file> --facts <file>   re-evaluate on rule changes

Exit codes: 0 ok, 1 fatal error, 2 bad usage.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	var err error
	switch os.Args[1] {
	case "evaluate":
		err = runEvaluate(cfg, logger, os.Args[2:], false)
	case "watch":
		err = runEvaluate(cfg, logger, os.Args[2:], true)
	case "validate":
		err = runValidate(cfg, os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func limits(cfg Config) dsl.Limits {
	return dsl.Limits{MaxExprLen: cfg.MaxExprLen, MaxDepth: cfg.MaxDepth}
}

func runValidate(cfg Config, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	rulesPath := fs.String("rules", cfg.RulesPath, "rule file to validate")
	_ = fs.Parse(args)

	if *rulesPath == "" {
		return fmt.Errorf("--rules is required")
	}
	rs, err := rules.Load(*rulesPath, limits(cfg))
	if err != nil {
		return err
	}
	fmt.Printf("ok: %d rules\n", rs.Len())
	return nil
}

func runEvaluate(cfg Config, logger *slog.Logger, args []string, watch bool) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	rulesPath := fs.String("rules", cfg.RulesPath, "rule file")
	factsPath := fs.String("facts", "", "fact snapshot JSON file")
	output := fs.String("output", "-", "output file, - for stdout")
	_ = fs.Parse(args)

	if *rulesPath == "" || *factsPath == "" {
		return fmt.Errorf("--rules and --facts are required")
	}

	snapshot, err := readSnapshot(*factsPath)
	if err != nil {
		return err
	}

	lim := limits(cfg)
	engCfg := engine.Config{
		Limits:    lim,
		Telemetry: cfg.Telemetry,
		Observer:  engine.LogObserver{Logger: logger},
		Logger:    logger,
	}

	if !watch {
		rs, err := rules.Load(*rulesPath, lim)
		if err != nil {
			return err
		}
		return evaluateOnce(engine.New(rs, engCfg), snapshot, *output)
	}

	reloader, err := rules.NewReloader(rules.ReloaderConfig{
		Path:         *rulesPath,
		CronSchedule: cfg.ReloadCron,
		OnSwap: func(rs *schema.RuleSet) {
			if err := evaluateOnce(engine.New(rs, engCfg), snapshot, *output); err != nil {
				logger.Warn("evaluation failed", "error", err)
			}
		},
	}, lim, logger)
	if err != nil {
		return err
	}

	if err := evaluateOnce(engine.New(reloader.Current(), engCfg), snapshot, *output); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return reloader.Watch(ctx)
}

func evaluateOnce(eng *engine.Engine, snapshot map[string]any, output string) error {
	actions, err := eng.Evaluate(context.Background(), snapshot)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(actions, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if output == "-" || output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(output, data, 0o644)
}

func readSnapshot(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts file: %w", err)
	}
	var snapshot map[string]any
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("facts file %s is not a JSON object: %w", path, err)
	}
	return snapshot, nil
}
