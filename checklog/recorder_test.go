package checklog_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/checklog"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/store/memory"
)

func newEngine(t *testing.T, rec *checklog.Recorder) *bastion.Engine {
	t.Helper()
	cfg := bastion.DefaultConfig()
	cfg.CleanupInterval = 0
	eng, err := bastion.NewEngine(
		bastion.WithStore(memory.New()),
		bastion.WithConfig(cfg),
		bastion.WithPlugin(rec),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })
	return eng
}

func TestRecorderCapturesDecisions(t *testing.T) {
	ctx := context.Background()
	logs := checklog.NewMemory(10)
	eng := newEngine(t, checklog.NewRecorder(logs))

	viewer := bastion.Principal{Kind: bastion.PrincipalSession, ID: "user-1", Role: "viewer"}
	eng.Can(ctx, viewer, permission.ContentRead, "")
	eng.Can(ctx, viewer, permission.ContentDelete, "")

	all, err := logs.ListCheckLogs(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Permission != string(permission.ContentDelete) || all[0].Allowed {
		t.Fatalf("newest entry should be the denied delete, got %+v", all[0])
	}
	if all[0].Decision != string(bastion.DecisionDenyNoPerms) || all[0].ID.IsNil() {
		t.Fatalf("unexpected entry %+v", all[0])
	}

	allowed, _ := logs.ListCheckLogs(ctx, &checklog.QueryFilter{Decision: string(bastion.DecisionAllow)})
	if len(allowed) != 1 || !allowed[0].Allowed {
		t.Fatalf("decision filter failed: %+v", allowed)
	}
}

func TestRecorderDeniedOnly(t *testing.T) {
	ctx := context.Background()
	logs := checklog.NewMemory(10)
	eng := newEngine(t, checklog.NewRecorder(logs, checklog.WithDeniedOnly()))

	admin := bastion.Principal{Kind: bastion.PrincipalSession, ID: "root", Role: "admin"}
	eng.Can(ctx, admin, permission.SettingsUpdate, "")
	eng.Can(ctx, bastion.Principal{}, permission.ContentRead, "")

	all, _ := logs.ListCheckLogs(ctx, nil)
	if len(all) != 1 || all[0].Decision != string(bastion.DecisionDenyUnauthenticated) {
		t.Fatalf("expected only the unauthenticated denial, got %+v", all)
	}
}

func TestMemoryRingAndPurge(t *testing.T) {
	ctx := context.Background()
	logs := checklog.NewMemory(3)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 5 {
		e := &checklog.Entry{PrincipalID: "p", Permission: "content:read", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := logs.AppendCheckLog(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	all, _ := logs.ListCheckLogs(ctx, nil)
	if len(all) != 3 {
		t.Fatalf("ring should keep 3 entries, got %d", len(all))
	}
	if !all[0].CreatedAt.Equal(base.Add(4*time.Minute)) || !all[2].CreatedAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("unexpected order %v .. %v", all[0].CreatedAt, all[2].CreatedAt)
	}

	limited, _ := logs.ListCheckLogs(ctx, &checklog.QueryFilter{Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("limit ignored, got %d", len(limited))
	}

	n, _ := logs.PurgeCheckLogs(ctx, base.Add(4*time.Minute))
	if n != 2 {
		t.Fatalf("expected 2 purged, got %d", n)
	}
	all, _ = logs.ListCheckLogs(ctx, nil)
	if len(all) != 1 {
		t.Fatalf("expected 1 entry after purge, got %d", len(all))
	}
}
