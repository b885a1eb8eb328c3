package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wxassist/internal/account"
	"wxassist/internal/callback"
	"wxassist/internal/config"
	"wxassist/internal/httpapi"
	"wxassist/internal/logbus"
	"wxassist/internal/message"
	"wxassist/internal/notify"
	"wxassist/internal/store/sqlite"
	"wxassist/internal/wxapi"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	bus := logbus.New(200)
	bus.Info("server starting", map[string]any{"addr": cfg.Server.Addr})

	ctx := context.Background()
	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	notifier := notify.NewEmailNotifier(store, bus)

	api := wxapi.New(cfg.Upstream, cfg.Proxy, cfg.Limits, bus)
	accounts := account.New(account.Options{
		Store:    store,
		API:      api,
		Bus:      bus,
		Notifier: notifier,
	})
	messages := message.New(message.Options{Store: store, API: api, Bus: bus})
	dispatcher := callback.New(callback.Options{
		Store:    store,
		Accounts: accounts,
		Messages: messages,
		Bus:      bus,
	})

	srv := httpapi.New(httpapi.Options{
		Cfg:        cfg,
		Bus:        bus,
		Store:      store,
		Accounts:   accounts,
		Messages:   messages,
		Dispatcher: dispatcher,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		bus.Info("shutdown signal received", map[string]any{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			bus.Error("http server error", map[string]any{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = notifier.Close(shutdownCtx)
	_ = server.Shutdown(shutdownCtx)
	bus.Info("server stopped", nil)
}
