// Package cache is a file-backed store of completed AI enrichments keyed by
// commit, evidence hash and engine.
package cache

import (
	"cmp"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	appai "github.com/ahrav/buenobot/internal/app/ai"
	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/internal/infra/storage"
	"github.com/ahrav/buenobot/pkg/common"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

var _ appai.Cache = (*FileCache)(nil)

// NoCommit stands in for an empty commit in cache keys.
const NoCommit = "no-commit"

const (
	entryExt  = ".cbor"
	fanOutLen = 2
)

// Entry is the on-disk record.
type Entry struct {
	Key          string                  `cbor:"key"`
	Commit       string                  `cbor:"commit"`
	EvidenceHash string                  `cbor:"evidence_hash"`
	Engine       string                  `cbor:"engine"`
	CreatedAt    time.Time               `cbor:"created_at"`
	Payload      analysis.EnrichedReport `cbor:"payload"`
}

// Key derives the content-addressed key for a tuple.
func Key(commit, evidenceHash, engine string) string {
	sum := blake3.Sum256([]byte(cmp.Or(commit, NoCommit) + "|" + evidenceHash + "|" + engine))
	return hex.EncodeToString(sum[:])
}

// FileCache stores one CBOR file per entry under a two-character fan-out
// directory. Expired entries are removed when read.
type FileCache struct {
	dir string
	ttl time.Duration
	now func() time.Time

	enc cbor.EncMode
	dec cbor.DecMode

	logger *logger.Logger
	tracer trace.Tracer
}

// Option configures a FileCache.
type Option func(*FileCache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(c *FileCache) { c.now = now } }

// New creates a FileCache rooted at dir. A ttl of zero keeps entries forever.
func New(dir string, ttl time.Duration, log *logger.Logger, tracer trace.Tracer, opts ...Option) (*FileCache, error) {
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	enc, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decoder: %w", err)
	}

	c := &FileCache{
		dir:    dir,
		ttl:    ttl,
		now:    time.Now,
		enc:    enc,
		dec:    dec,
		logger: log.With("component", "ai_cache", "dir", dir),
		tracer: tracer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key[:fanOutLen], key+entryExt)
}

// Get returns the payload stored for the tuple. Missing, unreadable and
// expired entries are misses.
func (c *FileCache) Get(ctx context.Context, commit, evidenceHash, engine string) (analysis.EnrichedReport, bool) {
	key := Key(commit, evidenceHash, engine)
	var (
		out analysis.EnrichedReport
		hit bool
	)
	_ = storage.ExecuteAndTrace(ctx, c.tracer, "ai_cache.get", []attribute.KeyValue{
		attribute.String("key", key),
		attribute.String("engine", engine),
	}, func(ctx context.Context) error {
		entry, err := c.read(c.path(key))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				c.logger.Warn(ctx, "unreadable cache entry", "key", key, "error", err)
			}
			return nil
		}
		if c.expired(entry) {
			if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				c.logger.Warn(ctx, "failed to evict expired entry", "key", key, "error", err)
			}
			c.logger.Debug(ctx, "evicted expired cache entry", "key", key)
			return nil
		}
		out, hit = entry.Payload, true
		return nil
	})
	return out, hit
}

// Set stores rep for the tuple, overwriting any previous entry.
func (c *FileCache) Set(ctx context.Context, commit, evidenceHash, engine string, rep analysis.EnrichedReport) error {
	key := Key(commit, evidenceHash, engine)
	return storage.ExecuteAndTrace(ctx, c.tracer, "ai_cache.set", []attribute.KeyValue{
		attribute.String("key", key),
		attribute.String("engine", engine),
	}, func(ctx context.Context) error {
		data, err := c.enc.Marshal(Entry{
			Key:          key,
			Commit:       cmp.Or(commit, NoCommit),
			EvidenceHash: evidenceHash,
			Engine:       engine,
			CreatedAt:    c.now().UTC(),
			Payload:      rep,
		})
		if err != nil {
			return fmt.Errorf("encoding cache entry: %w", err)
		}
		if err := common.WriteFileAtomic(c.path(key), data, 0o644); err != nil {
			return fmt.Errorf("writing cache entry: %w", err)
		}
		return nil
	})
}

// Invalidate deletes every entry matching commit and evidenceHash. Empty
// arguments match anything, so Invalidate(ctx, "", "") clears the cache.
// It returns the number of entries removed.
func (c *FileCache) Invalidate(ctx context.Context, commit, evidenceHash string) (int, error) {
	removed := 0
	err := storage.ExecuteAndTrace(ctx, c.tracer, "ai_cache.invalidate", []attribute.KeyValue{
		attribute.String("commit", commit),
		attribute.String("evidence_hash", evidenceHash),
	}, func(ctx context.Context) error {
		err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, entryExt) {
				return nil
			}
			entry, err := c.read(path)
			if err != nil {
				c.logger.Warn(ctx, "skipping unreadable cache entry", "path", path, "error", err)
				return nil
			}
			if commit != "" && entry.Commit != commit {
				return nil
			}
			if evidenceHash != "" && entry.EvidenceHash != evidenceHash {
				return nil
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("removing %s: %w", path, err)
			}
			removed++
			return nil
		})
		if err != nil {
			return fmt.Errorf("walking cache dir: %w", err)
		}
		return nil
	})
	c.logger.Info(ctx, "cache invalidated", "commit", commit, "evidence_hash", evidenceHash, "removed", removed)
	return removed, err
}

func (c *FileCache) read(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := c.dec.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return e, nil
}

func (c *FileCache) expired(e Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.CreatedAt) > c.ttl
}
