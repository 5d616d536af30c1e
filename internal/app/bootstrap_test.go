package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"convert_invoices/internal/domain"
	"convert_invoices/internal/registry"
	"convert_invoices/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBootstrap(t *testing.T) *Bootstrap {
	t.Helper()
	catalog, err := registry.DefaultCatalog()
	require.NoError(t, err)
	reg, err := registry.New(context.Background(), catalog, nil)
	require.NoError(t, err)
	return &Bootstrap{
		Registry:  reg,
		Snapshots: storage.NewSnapshotManager(t.TempDir()),
	}
}

func TestHandleCurrencies(t *testing.T) {
	b := testBootstrap(t)

	rec := httptest.NewRecorder()
	b.handleCurrencies(rec, httptest.NewRequest(http.MethodGet, "/api/currencies", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []domain.Currency
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 18)
	assert.Equal(t, "VRSC", got[0].SystemName)

	rec = httptest.NewRecorder()
	b.handleCurrencies(rec, httptest.NewRequest(http.MethodPost, "/api/currencies", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlePairs(t *testing.T) {
	b := testBootstrap(t)

	rec := httptest.NewRecorder()
	b.handlePairs(rec, httptest.NewRequest(http.MethodGet, "/api/pairs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []registry.Pair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, "tBTC.vETH", got[0].From.SystemName)
	assert.Equal(t, "VRSC", got[0].To.SystemName)
}

func TestDumpSessions(t *testing.T) {
	b := testBootstrap(t)

	b.dumpSessions(nil)
	snap, err := b.Snapshots.LoadLatest()
	require.NoError(t, err)
	assert.Nil(t, snap, "no sessions, no dump")

	b.dumpSessions(map[string]domain.ConversionState{
		"a": {Seq: 4, FromCurrency: "vETH"},
		"b": {Seq: 9, FromCurrency: "VRSC", Amount: "2"},
	})
	snap, err = b.Snapshots.LoadLatest()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, uint64(9), snap.Seq)
	assert.Equal(t, "shutdown", snap.Reason)
	assert.Equal(t, "2", snap.Sessions["b"].Amount)
}

func TestInitialize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "_workspace"), 0o755))
	chdir(t, dir)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
app:
  version: test
rpc:
  url: http://127.0.0.1:1
storage:
  db_name: test.db
logging:
  level: error
`), 0o644))

	ctx := context.Background()
	b := NewBootstrap()
	require.NoError(t, b.Initialize(ctx, Options{ConfigPath: cfgPath, Exclusive: true}))
	t.Cleanup(b.Close)

	assert.Equal(t, "test", b.Config.App.Version)
	assert.NotNil(t, b.Quoter)
	assert.Equal(t, "CLOSED", b.RPC.BreakerState())
	assert.FileExists(t, filepath.Join(dir, "_workspace", "data", "test.db"))

	def, ok := b.Registry.DefaultFrom()
	require.True(t, ok)
	sess := b.NewSession("s1", func(domain.ConversionState) {})
	assert.Equal(t, "", sess.Snapshot().FromCurrency, "default applies once the loop runs")
	assert.Equal(t, "vETH", def.SystemName)

	// Overrides written through the registry survive a second bootstrap.
	require.NoError(t, b.Registry.SetEnabled(ctx, "CHIPS", true))

	second := NewBootstrap()
	err := second.Initialize(ctx, Options{ConfigPath: cfgPath, Exclusive: true})
	assert.Error(t, err, "instance lock must block a second exclusive bootstrap")
	second.Close()

	third := NewBootstrap()
	require.NoError(t, third.Initialize(ctx, Options{ConfigPath: cfgPath}))
	t.Cleanup(third.Close)
	_, ok = third.Registry.BySystemName("CHIPS")
	assert.True(t, ok)
}

func TestInitialize_ExplicitConfigMustExist(t *testing.T) {
	b := NewBootstrap()
	err := b.Initialize(context.Background(), Options{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	b.Close()
}

func TestInitialize_WatchCatalog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "_workspace"), 0o755))
	chdir(t, dir)

	catalog := func(chips bool) []byte {
		body := "currencies:\n" +
			"  - { system_name: VRSC, trading_symbol: VRSC, i_address: i5w5MuNik5NtLcYmNzcvaoixooEebB6MGV, enabled: true, decimals: 8 }\n"
		if chips {
			body += "  - { system_name: CHIPS, trading_symbol: CHIPS, i_address: iJ3WZocnjG9ufv7GKUA4LijQno5gTMb7tP, enabled: true, decimals: 8 }\n"
		}
		return []byte(body)
	}
	catPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catPath, catalog(false), 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
rpc:
  url: http://127.0.0.1:1
catalog:
  path: `+catPath+`
  retry_sec: 1
logging:
  level: error
`), 0o644))

	b := NewBootstrap()
	require.NoError(t, b.Initialize(context.Background(), Options{ConfigPath: cfgPath, WatchCatalog: true}))
	t.Cleanup(b.Close)
	require.NotNil(t, b.watcher)

	_, ok := b.Registry.BySystemName("CHIPS")
	require.False(t, ok)

	require.NoError(t, os.WriteFile(catPath, catalog(true), 0o644))
	assert.Eventually(t, func() bool {
		_, ok := b.Registry.BySystemName("CHIPS")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

// chdir changes the working directory for the duration of the test, like
// testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
