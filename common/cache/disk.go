package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/qianghan/docvault/common/logger"
)

const (
	dataSuffix = ".data"
	metaSuffix = ".meta.json"

	// sweepTargetRatio is how far below the byte budget a sweep drives usage.
	sweepTargetRatio = 0.8
)

// Disk is the bounded on-disk tier. Keys are hashed to filesystem-safe
// names; every entry is a zstd-compressed data file plus a JSON metadata
// side file carrying expiry and access counters. Capacity is a total
// byte-size budget over the stored (compressed) data.
type Disk struct {
	mu     sync.Mutex
	dir    string
	budget int64
	usage  int64
	now    func() time.Time
	log    *logger.Logger

	enc *zstd.Encoder
	dec *zstd.Decoder
}

type diskMeta struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`        // uncompressed
	StoredSize  int64     `json:"stored_size"` // compressed, counted against the budget
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"` // zero means no expiry
	LastAccess  time.Time `json:"last_access"`
	AccessCount int64     `json:"access_count"`
}

// DiskOption configures a Disk cache.
type DiskOption func(*Disk)

// WithDiskClock injects a clock, used by tests to control expiry.
func WithDiskClock(now func() time.Time) DiskOption {
	return func(d *Disk) {
		d.now = now
	}
}

// NewDisk creates the on-disk tier rooted at dir with the given byte budget.
// Existing entries are scanned so usage accounting survives restarts.
func NewDisk(dir string, budgetBytes int64, log *logger.Logger, opts ...DiskOption) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	d := &Disk{
		dir:    dir,
		budget: budgetBytes,
		now:    time.Now,
		log:    log,
		enc:    enc,
		dec:    dec,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.usage, err = d.scanUsage()
	if err != nil {
		return nil, fmt.Errorf("scan cache dir: %w", err)
	}

	return d, nil
}

// Get retrieves and decompresses a cached value. Expired entries are removed
// and reported as a miss.
func (d *Disk) Get(ctx context.Context, key string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	hash := hashKey(key)
	meta, err := d.readMeta(hash)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache metadata for %q: %w", key, err)
	}

	now := d.now()
	if meta.expired(now) {
		d.removeLocked(hash, meta.StoredSize)
		return nil, false, nil
	}

	compressed, err := os.ReadFile(d.path(hash, dataSuffix))
	if err != nil {
		if os.IsNotExist(err) {
			// Orphaned metadata; drop it.
			d.removeLocked(hash, meta.StoredSize)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache data for %q: %w", key, err)
	}

	value, err := d.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress cache data for %q: %w", key, err)
	}

	meta.LastAccess = now
	meta.AccessCount++
	// Access bookkeeping is best effort; a failed write must not fail the read.
	if err := d.writeMeta(hash, meta); err != nil {
		d.log.Warn("failed to update cache access metadata", "key", key, "error", err)
	}

	return value, true, nil
}

// Set compresses and stores a value, sweeping oldest-accessed entries first
// when the write would push usage over the byte budget.
func (d *Disk) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	compressed := d.enc.EncodeAll(value, nil)
	storedSize := int64(len(compressed))

	if d.usage+storedSize > d.budget {
		d.sweepLocked()
	}

	hash := hashKey(key)

	// Replacing an entry releases its old budget share first.
	if old, err := d.readMeta(hash); err == nil {
		d.usage -= old.StoredSize
	}

	if err := os.WriteFile(d.path(hash, dataSuffix), compressed, 0o644); err != nil {
		return fmt.Errorf("write cache data for %q: %w", key, err)
	}

	now := d.now()
	meta := &diskMeta{
		Key:        key,
		Size:       int64(len(value)),
		StoredSize: storedSize,
		CreatedAt:  now,
		LastAccess: now,
	}
	if ttl > 0 {
		meta.ExpiresAt = now.Add(ttl)
	}
	if err := d.writeMeta(hash, meta); err != nil {
		os.Remove(d.path(hash, dataSuffix))
		return fmt.Errorf("write cache metadata for %q: %w", key, err)
	}

	d.usage += storedSize
	return nil
}

// SetStream caches the full content of rs, then restores the caller's read
// position so the stream can still be consumed as if it was never touched.
func (d *Disk) SetStream(ctx context.Context, key string, rs io.ReadSeeker, ttl time.Duration) error {
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("record stream position: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind stream: %w", err)
	}

	value, err := io.ReadAll(rs)
	if err != nil {
		return fmt.Errorf("read stream for caching: %w", err)
	}

	if _, err := rs.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("restore stream position: %w", err)
	}

	return d.Set(ctx, key, value, ttl)
}

// Invalidate removes a single entry.
func (d *Disk) Invalidate(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	hash := hashKey(key)
	meta, err := d.readMeta(hash)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache metadata for %q: %w", key, err)
	}

	d.removeLocked(hash, meta.StoredSize)
	return nil
}

// Clear removes all entries.
func (d *Disk) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("list cache dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, dataSuffix) || strings.HasSuffix(name, metaSuffix) {
			os.Remove(filepath.Join(d.dir, name))
		}
	}

	d.usage = 0
	return nil
}

// Close releases the compression codecs.
func (d *Disk) Close() error {
	d.enc.Close()
	d.dec.Close()
	return nil
}

// Usage returns the bytes currently counted against the budget.
func (d *Disk) Usage() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usage
}

// sweepLocked evicts expired entries, then oldest-accessed entries, until
// usage falls to the sweep target (80% of the budget).
func (d *Disk) sweepLocked() {
	target := int64(float64(d.budget) * sweepTargetRatio)

	metas, err := d.listMetas()
	if err != nil {
		d.log.Error("cache sweep failed to list entries", "error", err)
		return
	}

	now := d.now()
	remaining := metas[:0]
	for _, m := range metas {
		if m.meta.expired(now) {
			d.removeLocked(m.hash, m.meta.StoredSize)
			continue
		}
		remaining = append(remaining, m)
	}

	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].meta.LastAccess.Before(remaining[j].meta.LastAccess)
	})

	evicted := 0
	for _, m := range remaining {
		if d.usage <= target {
			break
		}
		d.removeLocked(m.hash, m.meta.StoredSize)
		evicted++
	}

	d.log.Debug("disk cache sweep complete", "evicted", evicted, "usage_bytes", d.usage, "budget_bytes", d.budget)
}

type hashedMeta struct {
	hash string
	meta *diskMeta
}

func (d *Disk) listMetas() ([]hashedMeta, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}

	metas := make([]hashedMeta, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		hash := strings.TrimSuffix(name, metaSuffix)
		meta, err := d.readMeta(hash)
		if err != nil {
			// Corrupted side file; skip rather than fail the sweep.
			d.log.Warn("skipping unreadable cache metadata", "file", name, "error", err)
			continue
		}
		metas = append(metas, hashedMeta{hash: hash, meta: meta})
	}
	return metas, nil
}

func (d *Disk) scanUsage() (int64, error) {
	metas, err := d.listMetas()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, m := range metas {
		total += m.meta.StoredSize
	}
	return total, nil
}

func (d *Disk) removeLocked(hash string, storedSize int64) {
	os.Remove(d.path(hash, dataSuffix))
	os.Remove(d.path(hash, metaSuffix))
	d.usage -= storedSize
	if d.usage < 0 {
		d.usage = 0
	}
}

func (d *Disk) readMeta(hash string) (*diskMeta, error) {
	raw, err := os.ReadFile(d.path(hash, metaSuffix))
	if err != nil {
		return nil, err
	}
	var meta diskMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode cache metadata: %w", err)
	}
	return &meta, nil
}

func (d *Disk) writeMeta(hash string, meta *diskMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(d.path(hash, metaSuffix), raw, 0o644)
}

func (d *Disk) path(hash, suffix string) string {
	return filepath.Join(d.dir, hash+suffix)
}

func (m *diskMeta) expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
