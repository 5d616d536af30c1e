package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"convert_invoices/internal/domain"
	"convert_invoices/internal/engine"
	"convert_invoices/internal/infra"
	"convert_invoices/internal/infra/rpc"
	"convert_invoices/internal/infra/wsserver"
	"convert_invoices/internal/pricing"
	"convert_invoices/internal/registry"
	"convert_invoices/internal/storage"
	"convert_invoices/pkg/quant"
)

const (
	snapshotKeep    = 10
	shutdownTimeout = 5 * time.Second
)

// Options control how much of the system Initialize brings up.
type Options struct {
	// ConfigPath overrides config discovery when set.
	ConfigPath string
	// Exclusive takes the instance lock. The service sets it; one-shot CLI
	// commands share the database instead.
	Exclusive bool
	// WatchCatalog reloads the catalog file while running.
	WatchCatalog bool
}

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Store     *storage.QuoteStore
	Snapshots *storage.SnapshotManager
	Registry  *registry.Registry
	RPC       *rpc.Client
	Quoter    *pricing.Quoter

	watcher *registry.Watcher
	unlock  func()
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads config and wires storage, the registry and the pricing
// pipeline. Call Close when done.
func (b *Bootstrap) Initialize(ctx context.Context, opts Options) error {
	// 1. Config
	path := opts.ConfigPath
	if path == "" {
		path = infra.ResolveConfigPath()
	}
	cfg, err := infra.LoadConfig(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && opts.ConfigPath == "":
		cfg = infra.DefaultConfig()
	case err != nil:
		return domain.ConfigurationError("bootstrap", "load config %s: %v", path, err)
	}
	b.Config = cfg

	// 2. Logger
	slog.SetDefault(infra.NewLogger(cfg))
	if err != nil {
		slog.Warn("No config file found, using defaults", slog.String("path", path))
	}

	// 3. Workspace and storage
	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data")
	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if opts.Exclusive {
		unlock, err := infra.CreateLockFile(workDir)
		if err != nil {
			return err
		}
		b.unlock = unlock
	}

	dbPath := filepath.Join(dataDir, cfg.Storage.DBName)
	store, err := storage.NewQuoteStore(dbPath)
	if err != nil {
		return err
	}
	b.Store = store
	b.Snapshots = storage.NewSnapshotManager(filepath.Join(dataDir, "snapshots"))
	slog.Info("QuoteStore initialized (WAL-mode)", slog.String("path", dbPath))

	// 4. Registry
	catalog, catalogPath, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	reg, err := registry.New(ctx, catalog, store)
	if err != nil {
		return err
	}
	b.Registry = reg
	slog.Info("Registry ready",
		slog.Int("enabled", len(reg.Enabled())),
		slog.Int("converters", len(reg.Converters())),
		slog.String("catalog", catalogOrBuiltin(catalogPath)))

	if opts.WatchCatalog && catalogPath != "" {
		w := registry.NewWatcher(reg, catalogPath, time.Duration(cfg.Catalog.RetrySec)*time.Second)
		if err := w.Start(ctx); err != nil {
			slog.Warn("Catalog hot reload disabled", slog.Any("error", err))
		} else {
			b.watcher = w
		}
	}

	// 5. RPC + pricing
	var secrets *infra.SecretConfig
	if cfg.RPC.SecretsFile != "" {
		secrets, err = infra.LoadSecretConfig(cfg.RPC.SecretsFile)
		if err != nil {
			return domain.ConfigurationError("bootstrap", "%v", err)
		}
	}
	b.RPC = rpc.NewClientFromConfig(cfg, secrets)
	b.Quoter = pricing.NewQuoter(b.RPC, b.RPC, reg)

	return nil
}

func loadCatalog(cfg *infra.Config) (domain.Catalog, string, error) {
	if cfg.Catalog.Path == "" {
		c, err := registry.DefaultCatalog()
		return c, "", err
	}
	path := infra.ResolveCatalogPath(cfg.Catalog.Path)
	c, err := registry.LoadCatalog(path)
	return c, path, err
}

func catalogOrBuiltin(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}

// NewSession builds the controller for one client connection.
func (b *Bootstrap) NewSession(id string, onUpdate func(domain.ConversionState)) *engine.Controller {
	cfg := engine.Config{
		Session:   id,
		Debounce:  b.Config.Debounce(),
		Snapshots: b.Snapshots,
	}
	if def, ok := b.Registry.DefaultFrom(); ok {
		cfg.DefaultFrom = def.SystemName
	}
	return engine.NewController(b.Quoter, b.Registry, b.Store, cfg, onUpdate)
}

// Serve runs the session server until ctx ends, then dumps live sessions
// and waits for them to stop.
func (b *Bootstrap) Serve(ctx context.Context) error {
	ws := wsserver.NewServer(func(id string, onUpdate func(domain.ConversionState)) wsserver.Session {
		return b.NewSession(id, onUpdate)
	}, b.Config.Server.AllowedOrigins)

	mux := http.NewServeMux()
	mux.Handle("/", ws.Handler())
	mux.HandleFunc("/api/currencies", b.handleCurrencies)
	mux.HandleFunc("/api/pairs", b.handlePairs)
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"version":         b.Config.App.Version,
			"rpcBreaker":      b.RPC.BreakerState(),
			"registryVersion": b.Registry.Version(),
			"sessions":        ws.SessionCount(),
		})
	})

	srv := &http.Server{
		Addr:              b.Config.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Session server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	b.dumpSessions(ws.Snapshots())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// http.Server.Shutdown does not track upgraded connections.
	return errors.Join(srv.Shutdown(shutdownCtx), ws.Shutdown(shutdownCtx))
}

func (b *Bootstrap) dumpSessions(sessions map[string]domain.ConversionState) {
	if len(sessions) == 0 {
		return
	}
	var seq uint64
	for _, s := range sessions {
		seq = max(seq, s.Seq)
	}
	if err := b.Snapshots.Save(storage.CreateSnapshot(seq, "shutdown", sessions)); err != nil {
		slog.Error("Failed to dump sessions", slog.Any("error", err))
		return
	}
	if err := b.Snapshots.Cleanup(snapshotKeep); err != nil {
		slog.Warn("Snapshot cleanup failed", slog.Any("error", err))
	}
	slog.Info("Sessions dumped", slog.Int("count", len(sessions)))
}

func (b *Bootstrap) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, b.Registry.Enabled())
}

func (b *Bootstrap) handlePairs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, b.Registry.FrequentPairs())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", slog.Any("error", err))
	}
}

// RecordQuote journals a one-shot quote outside any session.
func (b *Bootstrap) RecordQuote(ctx context.Context, q domain.Quote) {
	rec := storage.NewQuoteRecord("cli", int64(quant.Now()), q)
	if _, err := b.Store.SaveQuote(ctx, rec); err != nil {
		slog.Warn("Failed to journal quote", slog.Any("error", err))
	}
}

// Close releases everything Initialize acquired.
func (b *Bootstrap) Close() {
	if b.watcher != nil {
		b.watcher.Stop()
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			slog.Warn("Failed to close store", slog.Any("error", err))
		}
	}
	if b.unlock != nil {
		b.unlock()
	}
}
