// Package reports persists scan reports as individual files plus a
// denormalized index used for listing.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sys/unix"

	appscanning "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/internal/infra/storage"
	"github.com/ahrav/buenobot/pkg/common"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

var _ appscanning.ReportStore = (*Store)(nil)

// ErrReportNotFound is returned when no report exists for a scan id.
var ErrReportNotFound = errors.New("report not found")

const (
	reportsDir = "reports"
	indexFile  = "index.json"
	lockFile   = "index.lock"
	plainExt   = ".json"
	zstdExt    = ".json.zst"
)

// IndexEntry is the listing summary of one report.
type IndexEntry struct {
	ScanID      string    `json:"scan_id"`
	Profile     string    `json:"profile"`
	Environment string    `json:"environment"`
	Status      string    `json:"status"`
	GateStatus  string    `json:"gate_status,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	Trigger     string    `json:"trigger"`
	Summary     string    `json:"summary"`
}

func entryFor(r *scanning.Report) IndexEntry {
	return IndexEntry{
		ScanID:      r.Metadata.ScanID,
		Profile:     r.Metadata.Profile,
		Environment: r.Metadata.Environment,
		Status:      string(r.Status),
		GateStatus:  string(r.GateStatus),
		StartedAt:   r.Metadata.StartedAt,
		FinishedAt:  r.Metadata.FinishedAt,
		DurationMS:  r.Counters.DurationMS,
		Trigger:     r.Metadata.Trigger,
		Summary:     r.Summary(),
	}
}

// Store saves reports under dir. Index updates are serialized within the
// process by a mutex and across processes by an advisory file lock.
type Store struct {
	dir      string
	compress bool

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu sync.Mutex

	logger *logger.Logger
	tracer trace.Tracer
}

// New creates a Store rooted at dir. When compress is set, reports are
// written zstd-compressed; both encodings are always readable.
func New(dir string, compress bool, log *logger.Logger, tracer trace.Tracer) (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Store{
		dir:      dir,
		compress: compress,
		enc:      enc,
		dec:      dec,
		logger:   log.With("component", "report_store", "dir", dir),
		tracer:   tracer,
	}, nil
}

// Close releases the codec resources.
func (s *Store) Close() {
	_ = s.enc.Close()
	s.dec.Close()
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid scan id %q", id)
	}
	return nil
}

func (s *Store) reportPath(id, ext string) string {
	return filepath.Join(s.dir, reportsDir, id+ext)
}

// Save writes the full report and upserts its index entry.
func (s *Store) Save(ctx context.Context, r scanning.Report) error {
	id := r.Metadata.ScanID
	return storage.ExecuteAndTrace(ctx, s.tracer, "report_store.save", []attribute.KeyValue{
		attribute.String("scan_id", id),
		attribute.String("status", string(r.Status)),
		attribute.Bool("compress", s.compress),
	}, func(ctx context.Context) error {
		if err := validID(id); err != nil {
			return err
		}

		data, err := json.MarshalIndent(&r, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report %s: %w", id, err)
		}
		ext, stale := plainExt, zstdExt
		if s.compress {
			data = s.enc.EncodeAll(data, nil)
			ext, stale = zstdExt, plainExt
		}
		if err := common.WriteFileAtomic(s.reportPath(id, ext), data, 0o644); err != nil {
			return fmt.Errorf("writing report %s: %w", id, err)
		}
		if err := os.Remove(s.reportPath(id, stale)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn(ctx, "failed to remove stale report encoding", "scan_id", id, "error", err)
		}

		entry := entryFor(&r)
		return s.withIndexLock(func() error {
			entries, err := s.readIndex()
			if err != nil {
				return err
			}
			replaced := false
			for i := range entries {
				if entries[i].ScanID == id {
					entries[i] = entry
					replaced = true
					break
				}
			}
			if !replaced {
				entries = append(entries, entry)
			}
			return common.WriteJSONAtomic(filepath.Join(s.dir, indexFile), entries)
		})
	})
}

// Get loads the full report for id.
func (s *Store) Get(ctx context.Context, id string) (scanning.Report, error) {
	var r scanning.Report
	err := storage.ExecuteAndTrace(ctx, s.tracer, "report_store.get", []attribute.KeyValue{
		attribute.String("scan_id", id),
	}, func(ctx context.Context) error {
		if err := validID(id); err != nil {
			return err
		}

		data, err := os.ReadFile(s.reportPath(id, zstdExt))
		switch {
		case err == nil:
			if data, err = s.dec.DecodeAll(data, nil); err != nil {
				return fmt.Errorf("decompressing report %s: %w", id, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			data, err = os.ReadFile(s.reportPath(id, plainExt))
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrReportNotFound, id)
			}
			if err != nil {
				return fmt.Errorf("reading report %s: %w", id, err)
			}
		default:
			return fmt.Errorf("reading report %s: %w", id, err)
		}

		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("decoding report %s: %w", id, err)
		}
		return nil
	})
	return r, err
}

// List returns index entries, most recently started first. A limit of zero
// or less returns every entry.
func (s *Store) List(ctx context.Context, limit int) ([]IndexEntry, error) {
	var entries []IndexEntry
	err := storage.ExecuteAndTrace(ctx, s.tracer, "report_store.list", []attribute.KeyValue{
		attribute.Int("limit", limit),
	}, func(ctx context.Context) error {
		return s.withIndexLock(func() error {
			var err error
			entries, err = s.readIndex()
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartedAt.After(entries[j].StartedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) readIndex() ([]IndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return []IndexEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	return entries, nil
}

// withIndexLock runs fn holding both the in-process mutex and an exclusive
// flock on the index lock file.
func (s *Store) withIndexLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating store dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.dir, lockFile), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("opening index lock: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("locking index: %w", err)
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()

	return fn()
}
