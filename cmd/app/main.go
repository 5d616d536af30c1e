package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"convert_invoices/internal/app"
	"convert_invoices/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	pprof := flag.Bool("pprof", false, "serve pprof on localhost:6060")
	flag.Parse()

	// 1. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	defer bootstrap.Close()
	if err := bootstrap.Initialize(ctx, app.Options{
		ConfigPath:   *configPath,
		Exclusive:    true,
		WatchCatalog: true,
	}); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}

	infra.SetUserAgent(infra.AppName + "/" + bootstrap.Config.App.Version)
	infra.PrintBanner(os.Stdout, bootstrap.Config)

	// 3. Pprof Server (localhost only)
	if *pprof {
		go func() {
			slog.Info("🕵️ Pprof server started on localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 4. Session server until shutdown
	slog.InfoContext(ctx, "✨ Conversion pricer operational. Press Ctrl+C to exit.")
	if err := bootstrap.Serve(ctx); err != nil {
		slog.Error("Session server failed", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}

	slog.Info("👋 Shutting down gracefully...")
}
