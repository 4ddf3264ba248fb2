package reports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

func newTestStore(t *testing.T, dir string, compress bool) *Store {
	t.Helper()
	s, err := New(dir, compress, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func sampleReport(id string, started time.Time) scanning.Report {
	r := scanning.NewReport(scanning.Metadata{
		ScanID:      id,
		Profile:     "quick",
		Environment: "staging",
		Trigger:     "ci",
		StartedAt:   started,
	})
	r.AddResult(scanning.CheckResult{
		CheckID: "api_health", Category: scanning.CategoryHealth, Status: scanning.CheckStatusPassed,
	})
	return r.Clone()
}

func TestStore_SaveAndGet(t *testing.T) {
	t.Parallel()

	for _, compress := range []bool{false, true} {
		t.Run(fmt.Sprintf("compress=%v", compress), func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			s := newTestStore(t, dir, compress)
			ctx := context.Background()

			r := sampleReport("scan-1", time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
			require.NoError(t, s.Save(ctx, r))

			ext := plainExt
			if compress {
				ext = zstdExt
			}
			_, err := os.Stat(filepath.Join(dir, reportsDir, "scan-1"+ext))
			require.NoError(t, err)

			got, err := s.Get(ctx, "scan-1")
			require.NoError(t, err)
			assert.Equal(t, "scan-1", got.Metadata.ScanID)
			assert.Equal(t, scanning.ReportStatusRunning, got.Status)
			require.Len(t, got.Results[scanning.CategoryHealth], 1)
			assert.Equal(t, "api_health", got.Results[scanning.CategoryHealth][0].CheckID)
		})
	}
}

func TestStore_GetMissingAndInvalid(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, t.TempDir(), false)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrReportNotFound)

	_, err = s.Get(context.Background(), "../etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrReportNotFound)
}

func TestStore_IndexUpsertAndList(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, t.TempDir(), false)
	ctx := context.Background()
	base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		require.NoError(t, s.Save(ctx, sampleReport(fmt.Sprintf("scan-%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	// Finalizing a report replaces its entry rather than appending.
	done := sampleReport("scan-1", base.Add(time.Minute))
	done.Status = scanning.ReportStatusDone
	done.GateStatus = scanning.GatePass
	require.NoError(t, s.Save(ctx, done))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"scan-2", "scan-1", "scan-0"},
		[]string{entries[0].ScanID, entries[1].ScanID, entries[2].ScanID})
	assert.Equal(t, "DONE", entries[1].Status)
	assert.Equal(t, "PASS", entries[1].GateStatus)
	assert.Equal(t, "ci", entries[1].Trigger)
	assert.NotEmpty(t, entries[1].Summary)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_ListEmpty(t *testing.T) {
	t.Parallel()

	entries, err := newTestStore(t, t.TempDir(), false).List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_CompressionToggleKeepsOneEncoding(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()
	r := sampleReport("scan-x", time.Now())

	require.NoError(t, newTestStore(t, dir, false).Save(ctx, r))
	require.NoError(t, newTestStore(t, dir, true).Save(ctx, r))

	_, err := os.Stat(filepath.Join(dir, reportsDir, "scan-x"+plainExt))
	assert.ErrorIs(t, err, os.ErrNotExist)

	got, err := newTestStore(t, dir, false).Get(ctx, "scan-x")
	require.NoError(t, err, "compressed reports stay readable")
	assert.Equal(t, "scan-x", got.Metadata.ScanID)
}

func TestStore_ConcurrentSavesDoNotLoseIndexEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// Two stores over one directory behave like two processes.
	a := newTestStore(t, dir, false)
	b := newTestStore(t, dir, true)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := a
			if i%2 == 1 {
				s = b
			}
			assert.NoError(t, s.Save(ctx, sampleReport(fmt.Sprintf("scan-%02d", i), time.Now())))
		}()
	}
	wg.Wait()

	entries, err := a.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}
