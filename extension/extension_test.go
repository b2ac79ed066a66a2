package extension

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/checklog"
	"github.com/xraph/bastion/store/memory"
)

func TestEngineConfigOverlaysDefaults(t *testing.T) {
	cfg := Config{CacheTTL: time.Minute, DefaultRateLimit: -1}
	got := cfg.engineConfig()
	def := bastion.DefaultConfig()

	if got.CacheTTL != time.Minute {
		t.Fatalf("CacheTTL = %v", got.CacheTTL)
	}
	if got.DefaultRateLimit != -1 {
		t.Fatalf("negative rate limit should pass through as unlimited, got %d", got.DefaultRateLimit)
	}
	if got.MaxInheritanceDepth != def.MaxInheritanceDepth || got.CleanupInterval != def.CleanupInterval {
		t.Fatalf("unset fields should keep defaults: %+v", got)
	}
}

func TestNewGroveStoreRejectsBadInput(t *testing.T) {
	if _, err := newGroveStore("postgres", nil); err == nil {
		t.Fatal("expected error for nil database")
	}
}

func TestLifecycleRequiresInit(t *testing.T) {
	ctx := context.Background()
	e := New(WithStore(memory.New()), WithDisableMigrate())

	if e.Name() != ExtensionName || e.config.DisableMigrate != true {
		t.Fatalf("options not applied: %+v", e.config)
	}
	if err := e.Start(ctx); err == nil {
		t.Fatal("Start before Register should fail")
	}
	if err := e.Health(ctx); err == nil {
		t.Fatal("Health before Register should fail")
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop before Register should be a no-op, got %v", err)
	}
}

func TestWithCheckLogRegistersRecorder(t *testing.T) {
	e := New(WithStore(memory.New()), WithCheckLog(checklog.NewMemory(0)))
	if len(e.plugins) != 1 || e.plugins[0].Name() != "checklog" {
		t.Fatalf("expected checklog recorder plugin, got %v", e.plugins)
	}
}
