package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/pior/redisproto"
)

func main() {
	configPath := flag.String("config", "", "Path to the TOML configuration file")
	listenAddr := flag.String("listen", "", "Listen address (overrides the config file)")
	flag.Parse()

	cfg, err := loadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	logger := newLogger(cfg)

	table := redisproto.NewCommandTable()
	registerStoreHandlers(table, newStore())
	table.MustRegister("MULTI", &multiHandler{table: table})
	if cfg.EnableScripting {
		table.MustRegister("EVAL", &scriptingHandler{table: table})
	}

	server, err := redisproto.NewServer(redisproto.ServerConfig{
		Table:          table,
		Logger:         logger,
		ReadBufferSize: cfg.ReadBufferSize,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create server")
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.ListenAddr).Msg("listen failed")
	}

	logger.Info().
		Str("addr", listener.Addr().String()).
		Strs("commands", table.Names()).
		Msg("serving")

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		received := <-sig
		logger.Info().Str("signal", received.String()).Msg("shutting down")
		server.Close()
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, redisproto.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("serve failed")
	}
	logger.Info().Msg("stopped")
}

func newLogger(cfg serverConfig) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.ConsoleLog {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(cfg.LogLevel).With().Timestamp().Logger()
}
