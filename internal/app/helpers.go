package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"horse.fit/newsgraph/internal/cli"
	"horse.fit/newsgraph/internal/config"
	"horse.fit/newsgraph/internal/logging"
	"horse.fit/newsgraph/internal/resolver"
)

// setup runs the shared command bootstrap: env file, config, logger.
func setup(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, bool) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, zerolog.Nop(), false
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, zerolog.Nop(), false
	}
	return cfg, logger, true
}

func resolverConfig(cfg *config.Config) resolver.Config {
	return resolver.Config{
		NavTimeout:   cfg.NavTimeout,
		PollInterval: cfg.PollInterval,
		PollAttempts: cfg.PollAttempts,
	}
}

// newResolverStack launches the shared browser and wires the machine and
// pool around it. The caller must Close the browser.
func newResolverStack(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*resolver.Browser, *resolver.Machine, *resolver.Pool, error) {
	rcfg := resolverConfig(cfg)
	browser, err := resolver.Launch(ctx, rcfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	machine := resolver.NewMachine(rcfg)
	pool := resolver.NewPool(browser, machine, cfg.DecoderConcurrency, logger)
	return browser, machine, pool, nil
}

// ndjsonEmitter serializes batch-protocol lines onto one writer. Emit is
// safe for concurrent use; workers stream results as they complete.
type ndjsonEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newNDJSONEmitter(w io.Writer) *ndjsonEmitter {
	return &ndjsonEmitter{enc: json.NewEncoder(w)}
}

func (e *ndjsonEmitter) Emit(v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to emit record: %v\n", err)
	}
}
