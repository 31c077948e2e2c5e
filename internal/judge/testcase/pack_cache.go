package testcase

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"judged/internal/storage"
	appErr "judged/pkg/errors"
)

const tempPackName = "pack.tmp"

// How long an evicted pack directory stays on disk before it is
// swept. A judge call that resolved the set just before eviction may
// still be reading case files from it.
const retireGrace = 5 * time.Minute

type packEntry struct {
	key       string
	path      string
	sizeBytes int64
	expiresAt time.Time
}

type retiredDir struct {
	path    string
	sweepAt time.Time
}

type fetchLock struct {
	mu   sync.Mutex
	refs int
}

// PackRepository resolves test-case sets from object storage. Sets
// are stored as <id>.tar.zst packs, downloaded and extracted into a
// local cache directory bounded by entry count and total size, with
// TTL-based expiry.
type PackRepository struct {
	rootDir    string
	bucket     string
	storage    storage.ObjectStorage
	ttl        time.Duration
	maxEntries int
	maxBytes   int64

	retireAfter time.Duration

	mu        sync.Mutex
	entries   map[string]*packEntry
	lruKeys   []string
	totalSize int64
	retired   []retiredDir
	inflight  map[string]*fetchLock
}

// NewPackRepository creates a pack-backed repository caching under rootDir.
func NewPackRepository(rootDir, bucket string, store storage.ObjectStorage, ttl time.Duration, maxEntries int, maxBytes int64) (*PackRepository, error) {
	if rootDir == "" {
		return nil, appErr.ValidationError("cache_dir", "required")
	}
	if store == nil {
		return nil, appErr.New(appErr.TestCaseCacheError).WithMessage("storage client is not initialized")
	}
	if maxEntries <= 0 {
		maxEntries = 64
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PackRepository{
		rootDir:     rootDir,
		bucket:      bucket,
		storage:     store,
		ttl:         ttl,
		maxEntries:  maxEntries,
		maxBytes:    maxBytes,
		retireAfter: retireGrace,
		entries:     make(map[string]*packEntry),
		inflight:    make(map[string]*fetchLock),
	}, nil
}

func (r *PackRepository) Resolve(ctx context.Context, testCaseID string) ([]Case, error) {
	if err := validateID(testCaseID); err != nil {
		return nil, err
	}
	path := filepath.Join(r.rootDir, testCaseID)
	if r.hitEntry(testCaseID) {
		return loadManifestDir(path, testCaseID)
	}

	// One download per set at a time; concurrent resolvers of the same
	// set wait for the first fetch.
	lock := r.acquireFetchLock(testCaseID)
	defer r.releaseFetchLock(testCaseID, lock)

	if r.hitEntry(testCaseID) {
		return loadManifestDir(path, testCaseID)
	}
	if r.checkDisk(path) {
		r.addEntry(testCaseID, path)
		return loadManifestDir(path, testCaseID)
	}
	if err := r.fetchAndExtract(ctx, testCaseID, path); err != nil {
		return nil, err
	}
	r.addEntry(testCaseID, path)
	return loadManifestDir(path, testCaseID)
}

func (r *PackRepository) hitEntry(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok {
		return false
	}
	if time.Now().After(entry.expiresAt) {
		r.removeEntryLocked(key)
		return false
	}
	entry.expiresAt = time.Now().Add(r.ttl)
	r.touchLocked(key)
	r.sweepRetiredLocked(time.Now())
	return true
}

func (r *PackRepository) checkDisk(path string) bool {
	_, err := os.Stat(filepath.Join(path, manifestName))
	return err == nil
}

func (r *PackRepository) acquireFetchLock(key string) *fetchLock {
	r.mu.Lock()
	lock, ok := r.inflight[key]
	if !ok {
		lock = &fetchLock{}
		r.inflight[key] = lock
	}
	lock.refs++
	r.mu.Unlock()
	lock.mu.Lock()
	return lock
}

// releaseFetchLock drops the lock and removes it from the table once
// the last waiter for the key is gone, so the table does not grow
// with every set ID ever resolved.
func (r *PackRepository) releaseFetchLock(key string, lock *fetchLock) {
	lock.mu.Unlock()
	r.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(r.inflight, key)
	}
	r.mu.Unlock()
}

func (r *PackRepository) fetchAndExtract(ctx context.Context, testCaseID, path string) error {
	if err := os.RemoveAll(path); err != nil {
		return appErr.Wrapf(err, appErr.TestCaseCacheError, "cleanup cache dir failed")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return appErr.Wrapf(err, appErr.TestCaseCacheError, "create cache dir failed")
	}

	objectKey := testCaseID + ".tar.zst"
	reader, err := r.storage.GetObject(ctx, r.bucket, objectKey)
	if err != nil {
		return appErr.Wrapf(err, appErr.TestCaseFetchFailed, "download test case pack failed")
	}
	defer reader.Close()

	tempPath := filepath.Join(path, tempPackName)
	file, err := os.Create(tempPath)
	if err != nil {
		return appErr.Wrapf(err, appErr.TestCaseCacheError, "create pack file failed")
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return appErr.Wrapf(err, appErr.TestCaseFetchFailed, "write pack file failed")
	}
	_ = file.Close()

	if err := extractPack(tempPath, path); err != nil {
		return err
	}
	_ = os.Remove(tempPath)
	if !r.checkDisk(path) {
		return appErr.New(appErr.TestCaseInvalid).WithMessage("pack contains no manifest")
	}
	return nil
}

func extractPack(srcPath, dstDir string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return appErr.Wrapf(err, appErr.TestCaseCacheError, "open pack failed")
	}
	defer file.Close()

	zstdReader, err := zstd.NewReader(file)
	if err != nil {
		return appErr.Wrapf(err, appErr.TestCaseCacheError, "create zstd reader failed")
	}
	defer zstdReader.Close()

	tr := tar.NewReader(zstdReader)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.TestCaseInvalid, "read tar entry failed")
		}
		if hdr.Name == "" {
			continue
		}
		cleanName := filepath.Clean(hdr.Name)
		if strings.HasPrefix(cleanName, "..") || filepath.IsAbs(cleanName) {
			return appErr.New(appErr.TestCaseInvalid).WithMessage("invalid tar entry path")
		}
		target := filepath.Join(dstDir, cleanName)
		if !strings.HasPrefix(target, filepath.Clean(dstDir)+string(filepath.Separator)) {
			return appErr.New(appErr.TestCaseInvalid).WithMessage("tar entry escape detected")
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return appErr.Wrapf(err, appErr.TestCaseCacheError, "create dir failed")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return appErr.Wrapf(err, appErr.TestCaseCacheError, "create parent dir failed")
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(hdr.Mode))
			if err != nil {
				return appErr.Wrapf(err, appErr.TestCaseCacheError, "create file failed")
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return appErr.Wrapf(err, appErr.TestCaseCacheError, "write file failed")
			}
			_ = out.Close()
		default:
			// skip other types
		}
	}
	return nil
}

func (r *PackRepository) addEntry(key, path string) {
	size := dirSize(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[key]; ok {
		r.totalSize -= existing.sizeBytes
	}
	// The path may have been retired by an earlier eviction and just
	// repopulated; it must not be swept out from under the new entry.
	r.unretireLocked(path)
	r.entries[key] = &packEntry{
		key:       key,
		path:      path,
		sizeBytes: size,
		expiresAt: time.Now().Add(r.ttl),
	}
	r.totalSize += size
	r.touchLocked(key)
	r.evictLocked()
	r.sweepRetiredLocked(time.Now())
}

func (r *PackRepository) touchLocked(key string) {
	for i, k := range r.lruKeys {
		if k == key {
			r.lruKeys = append(r.lruKeys[:i], r.lruKeys[i+1:]...)
			break
		}
	}
	r.lruKeys = append(r.lruKeys, key)
}

func (r *PackRepository) evictLocked() {
	for len(r.entries) > r.maxEntries || (r.maxBytes > 0 && r.totalSize > r.maxBytes) {
		if len(r.lruKeys) == 0 {
			return
		}
		oldest := r.lruKeys[0]
		r.removeEntryLocked(oldest)
	}
}

func (r *PackRepository) removeEntryLocked(key string) {
	entry, ok := r.entries[key]
	if !ok {
		return
	}
	delete(r.entries, key)
	r.totalSize -= entry.sizeBytes
	for i, k := range r.lruKeys {
		if k == key {
			r.lruKeys = append(r.lruKeys[:i], r.lruKeys[i+1:]...)
			break
		}
	}
	// Removal is deferred; a resolver that got this path moments ago
	// may still be reading case files from it.
	r.retired = append(r.retired, retiredDir{
		path:    entry.path,
		sweepAt: time.Now().Add(r.retireAfter),
	})
}

func (r *PackRepository) unretireLocked(path string) {
	kept := r.retired[:0]
	for _, d := range r.retired {
		if d.path != path {
			kept = append(kept, d)
		}
	}
	r.retired = kept
}

func (r *PackRepository) sweepRetiredLocked(now time.Time) {
	kept := r.retired[:0]
	for _, d := range r.retired {
		if now.Before(d.sweepAt) {
			kept = append(kept, d)
			continue
		}
		_ = os.RemoveAll(d.path)
	}
	r.retired = kept
}

func dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
