// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tools-tracker/db/migrate"
	"github.com/joseph-ayodele/tools-tracker/internal/repository"
)

// Logger discards output unless the test runs with -v.
func Logger(t testing.TB) *slog.Logger {
	t.Helper()
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(&testWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testWriter struct{ t testing.TB }

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// OpenDB opens a migrated SQLite database in the test's temp dir and closes it on cleanup.
func OpenDB(t testing.TB) *entsql.Driver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tools.db")
	drv, err := repository.OpenSQLite("file:"+path, Logger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })

	require.NoError(t, migrate.Create(context.Background(), drv))
	return drv
}

// Repos bundles every repository over one driver.
type Repos struct {
	Driver     *entsql.Driver
	Tools      repository.ToolRepository
	Orders     repository.OrderRepository
	Jobs       repository.JobRepository
	Links      repository.AccountingRepository
	Artifacts  repository.ArtifactRepository
	Detections repository.DetectionRepository
}

func NewRepos(t testing.TB) *Repos {
	t.Helper()
	drv := OpenDB(t)
	logger := Logger(t)
	return &Repos{
		Driver:     drv,
		Tools:      repository.NewToolRepository(drv, logger),
		Orders:     repository.NewOrderRepository(drv, logger),
		Jobs:       repository.NewJobRepository(drv, logger),
		Links:      repository.NewAccountingRepository(drv, logger),
		Artifacts:  repository.NewArtifactRepository(drv, logger),
		Detections: repository.NewDetectionRepository(drv, logger),
	}
}
