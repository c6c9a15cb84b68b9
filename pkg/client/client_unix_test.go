//go:build !windows

package client

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"palisade-hq/palisade/pkg/authz"
	"palisade-hq/palisade/pkg/config"
	"palisade-hq/palisade/pkg/engine"
	"palisade-hq/palisade/pkg/executor"
	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/server"
	"palisade-hq/palisade/pkg/winsys"
	"palisade-hq/palisade/pkg/wire"

	"palisade-hq/palisade/internal/winfake"
)

// startDaemon brings up a real control server on a temp socket and returns
// the socket path.
func startDaemon(t *testing.T) string {
	t.Helper()

	const keyPath = `HKLM\SOFTWARE\Policies\Palisade\Test`

	catalog := policy.NewCatalog()
	def := &policy.PolicyDefinition{
		ID:         "disable-autorun",
		Name:       "Disable Autorun",
		Mechanism:  policy.MechanismRegistry,
		Risk:       policy.RiskLow,
		Reversible: true,
		Details: &policy.RegistryDetails{
			Path:      keyPath,
			ValueName: "NoAutorun",
			Action:    policy.RegistryActionSet,
			ValueType: policy.RegDWord,
			ValueData: "1",
		},
	}
	if err := catalog.Replace([]*policy.PolicyDefinition{def}); err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}

	regStore := winfake.NewRegistry()
	regStore.Seed(keyPath, "NoAutorun", winsys.RegistryValue{Type: policy.RegDWord, Data: "0"})

	registry := executor.NewRegistry()
	if err := registry.Register(executor.NewRegistryExecutor(regStore)); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	store := ledger.NewMemoryStore()
	eng, err := engine.New(engine.Config{
		Catalog:    catalog,
		Resolver:   policy.NewResolver(catalog),
		Executors:  registry,
		Store:      store,
		Prober:     &winfake.Prober{Facts: winsys.HostFacts{OSBuild: 26100, OSEdition: "Windows 11 Pro"}},
		Checkpoint: winfake.NewCheckpoint(),
	})
	if err != nil {
		t.Fatalf("engine.New() failed: %v", err)
	}

	cfg := &config.ServerConfig{
		SocketPath:      filepath.Join(t.TempDir(), "ctl.sock"),
		MaxConnections:  2,
		MaxFrameBytes:   1 << 20,
		ReadTimeout:     2 * time.Second,
		WriteTimeout:    2 * time.Second,
		ShutdownTimeout: time.Second,
	}
	srv, err := server.New(cfg, server.Options{
		Engine:  eng,
		Catalog: catalog,
		Store:   store,
		Authorizer: authz.NewAuthorizer(authz.Config{RequireSignature: false}, nil),
		Inspector: &authz.StaticInspector{Identity: &authz.Identity{
			SID:            "uid:0",
			SessionLocal:   true,
			Authenticated:  true,
			AdminMember:    true,
			IntegrityLevel: authz.IntegrityHigh,
		}},
		Version:       "e2e",
		LedgerBackend: "memory",
	})
	if err != nil {
		t.Fatalf("server.New() failed: %v", err)
	}

	started := make(chan error, 1)
	go func() { started <- srv.Start(context.Background()) }()
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		select {
		case err := <-started:
			if err != nil {
				t.Errorf("Start() returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.Dial("unix", cfg.SocketPath)
		if err == nil {
			conn.Close()
			return cfg.SocketPath
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClient_EndToEnd(t *testing.T) {
	sock := startDaemon(t)

	c := New(Options{SocketPath: sock})
	defer c.Close()

	ctx := context.Background()

	pong, err := c.Ping(ctx)
	if err != nil {
		t.Fatalf("Ping() failed: %v", err)
	}
	if pong.ServerVersion != "e2e" {
		t.Errorf("ServerVersion = %q, want e2e", pong.ServerVersion)
	}

	var percents []int
	res, err := c.Apply(ctx, wire.ApplyPayload{PolicyIDs: []string{"disable-autorun"}}, func(p *wire.Progress) {
		percents = append(percents, p.Percent)
	})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if !res.Success || len(res.Applied) != 1 {
		t.Fatalf("apply result success=%v applied=%v", res.Success, res.Applied)
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Errorf("progress percents = %v, want a final 100", percents)
	}

	state, err := c.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() failed: %v", err)
	}
	if state.LatestSnapshotID != res.SnapshotID {
		t.Errorf("LatestSnapshotID = %q, want %q", state.LatestSnapshotID, res.SnapshotID)
	}

	hist, err := c.History(ctx, wire.HistoryPayload{PolicyID: "disable-autorun"})
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if hist.Total != 1 || len(hist.Records) != 1 {
		t.Errorf("history = %d records, total %d, want 1/1", len(hist.Records), hist.Total)
	}
}
