package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-miniapp-session/devbackend"
	"github.com/jrsteele09/go-miniapp-session/devbackend/repofake"
	"github.com/jrsteele09/go-miniapp-session/internal/config"
	"github.com/jrsteele09/go-miniapp-session/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	flag.Parse()

	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	cfg := config.MustLoad(*configPath)
	log := logging.New(cfg.GetEnv(), cfg.GetLogLevel())

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("dev backend stopped with error")
	}
	log.Info().Msg("dev backend stopped")
}

func run(cfg config.Config, log zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	if cfg.GetTelegramBotToken() == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN is not set, telegram logins will be rejected")
	}
	if cfg.GetVKAppSecret() == "" {
		log.Warn().Msg("VK_APP_SECRET is not set, vk logins will be rejected")
	}

	displayAppname(cfg.GetAppName())
	handler := devbackend.New(cfg, repofake.NewFakeUserRepo(), repofake.NewFakeRefreshTokenRepo(), devbackend.WithLogger(log))
	server := &http.Server{Addr: cfg.GetPort(), Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- listenAndServe(server, log) }()

	select {
	case err := <-errc:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server, log zerolog.Logger) error {
	log.Info().Str("addr", server.Addr).Msg("dev backend listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
