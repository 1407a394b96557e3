// Command coach is the process entrypoint of §6.7: it wires a simulator
// connector, the coaching pipeline and the UI WebSocket server together,
// runs until a termination signal, and shuts everything down gracefully.
//
// Exit codes: 0 clean shutdown, 1 startup failure (bad config, no
// simulator available), 2 fatal runtime error, 130 terminated by signal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"racecoach/config"
	"racecoach/llm"
	"racecoach/persistence"
	"racecoach/pipeline"
	"racecoach/sims"
	"racecoach/trackdata"
	"racecoach/transport/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	simType := flag.String("sim", "iracing", "simulator to connect to: iracing, acc, lmu")
	configPath := flag.String("config", "", "optional JSON file overriding the default configuration")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Str("component", "main").Logger()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("configuration error")
		return 1
	}

	connector, err := connectorFor(*simType)
	if err != nil {
		log.Error().Err(err).Str("sim", *simType).Msg("unsupported simulator")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := connector.Connect(ctx); err != nil {
		log.Error().Err(err).Str("sim", *simType).Msg("failed to connect to simulator")
		return 1
	}
	defer connector.Disconnect()

	store, err := persistence.NewStore(cfg.Persistence.DataDir)
	if err != nil {
		log.Error().Err(err).Msg("failed to open persistence store")
		return 1
	}

	llmClient, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		log.Warn().Err(err).Msg("llm client unavailable, running with local-only coaching")
	}
	enricher := llm.NewEnricher(llmClient, cfg.LLM)

	tracks, err := trackdata.NewStore("track_segments.json", nil, trackdata.NewGenerator(llmClient))
	if err != nil {
		log.Error().Err(err).Msg("failed to open track metadata store")
		return 1
	}

	p := pipeline.New(cfg, log, connector, tracks, store, enricher)
	server := ws.NewServer(cfg.WS, log, p)
	p.AttachServer(server)

	httpServer := &http.Server{Addr: cfg.WS.UIAddr, Handler: server.Handler()}
	httpErrs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.WS.UIAddr).Msg("ui websocket server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrs <- err
		}
	}()

	pipelineErrs := make(chan error, 1)
	go func() {
		pipelineErrs <- p.Run(ctx)
	}()

	var exitCode int
	pipelineDone := false
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		exitCode = 130
	case err := <-httpErrs:
		log.Error().Err(err).Msg("ui server failed")
		stop()
		exitCode = 2
	case err := <-pipelineErrs:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("pipeline stopped unexpectedly")
			exitCode = 2
		}
		stop()
		pipelineDone = true
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("ui server shutdown did not complete cleanly")
	}
	if !pipelineDone {
		<-pipelineErrs // wait for Run to actually return after ctx cancellation
	}

	return exitCode
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.FromJSON(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if key, err := config.LoadAPIKey(); err == nil {
		cfg.LLM.APIKey = key
	}
	return cfg, nil
}

func connectorFor(simType string) (sims.SimulatorConnector, error) {
	switch simType {
	case "iracing":
		return sims.NewIRacingConnector(), nil
	case "acc":
		return sims.NewACCConnector(), nil
	case "lmu":
		return sims.NewLMUConnector(), nil
	default:
		return nil, fmt.Errorf("unknown simulator %q", simType)
	}
}

