package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

func cmdRetry(cfg *Config, args []string) int {
	fs := flag.NewFlagSet("retry", flag.ContinueOnError)
	fs.SetOutput(cfg.Stderr)

	attempts := fs.Int("attempts", 3, "Run the command at most this many times")
	interval := fs.Duration("interval", time.Second, "Pause between attempts")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitError
	}

	remaining := fs.Args()
	if len(remaining) < 1 || *attempts < 1 {
		return cmdMissingArg(cfg, commands["retry"].Usage)
	}

	info, ok := commands[remaining[0]]
	if !ok {
		fmt.Fprintf(cfg.Stderr, "unknown command: %s\n", remaining[0])
		return ExitError
	}

	// Each attempt runs the command afresh, including a new browser session.
	var code, attempt int
	backoff := retry.WithMaxRetries(uint64(*attempts-1), retry.NewConstant(*interval))
	err := retry.Do(context.Background(), backoff, func(context.Context) error {
		attempt++
		if code = info.Run(cfg, remaining[1:]); code == ExitSuccess {
			return nil
		}
		cfg.Logger.Debug("attempt failed",
			zap.String("command", info.Name),
			zap.Int("attempt", attempt),
			zap.Int("exit", code))
		return retry.RetryableError(fmt.Errorf("%s exited %d", info.Name, code))
	})
	if err != nil {
		cfg.Logger.Debug("giving up", zap.String("command", info.Name), zap.Int("attempts", attempt), zap.Error(err))
	}
	return code
}
