package matrix

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"
)

var (
	// ErrReadOnly is returned by any write operation on a handle opened
	// with OpenReadOnly.
	ErrReadOnly = errors.New("matrix: store is read-only")
	// ErrShrink is returned by ExtendTime when the requested size is
	// smaller than the current time dimension.
	ErrShrink = errors.New("matrix: extend_time cannot shrink the time dimension")
	// ErrOutOfBounds is returned for any row/column index outside the
	// declared dimensions.
	ErrOutOfBounds = errors.New("matrix: index out of bounds")
	// ErrNotFound is returned when opening a bucket that was never
	// created.
	ErrNotFound = errors.New("matrix: object does not exist")
)

var chunksBucketName = []byte("chunks")

var (
	keyT             = []byte("T")
	keyN             = []byte("N")
	keyChunkT        = []byte("chunkT")
	keyChunkM        = []byte("chunkM")
	keyFill          = []byte("fill")
	keyStartDatetime = []byte("start_datetime")
)

// Matrix is a handle onto one chunked int32 array object stored in a bbolt
// bucket. It owns its chunk cache; the cache is never shared between
// handles, matching the declared resource-ownership model. A read-write
// handle must not be shared across goroutines that write concurrently;
// read-only handles may be freely shared.
type Matrix struct {
	db       *bbolt.DB
	bucket   []byte
	geom     Geometry
	readOnly bool

	mu    sync.Mutex
	t     uint32
	n     uint32
	fill  int32
	cache *chunkCache
}

// CacheOptions configures the LRU chunk cache sizing; zero values fall
// back to DefaultCacheSlots/DefaultCacheBytes.
type CacheOptions struct {
	MaxSlots int
	MaxBytes int
}

// Create creates a new matrix object named bucket inside db, with the
// given geometry and fixed mesh width n. startDatetime, if non-empty, is
// written as the start_datetime attribute (only population_data carries
// this attribute in practice, but Create does not enforce that by name).
func Create(db *bbolt.DB, bucket string, geom Geometry, n uint32, startDatetime string, opts CacheOptions) (*Matrix, error) {
	if err := geom.validate(); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("matrix: mesh width N must be positive")
	}

	name := []byte(bucket)
	err := db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucket(name)
		if err != nil {
			return fmt.Errorf("matrix: create bucket %s: %w", bucket, err)
		}
		if _, err := b.CreateBucket(chunksBucketName); err != nil {
			return err
		}
		putUint32(b, keyT, 0)
		putUint32(b, keyN, n)
		putUint32(b, keyChunkT, geom.ChunkT)
		putUint32(b, keyChunkM, geom.ChunkM)
		putInt32(b, keyFill, 0)
		if startDatetime != "" {
			if err := b.Put(keyStartDatetime, []byte(startDatetime)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Matrix{
		db:     db,
		bucket: name,
		geom:   geom,
		n:      n,
		cache:  newChunkCache(opts.MaxSlots, opts.MaxBytes),
	}, nil
}

// Open loads an existing matrix object. readOnly controls whether write
// operations are rejected up front rather than at the bbolt transaction
// layer.
func Open(db *bbolt.DB, bucket string, readOnly bool, opts CacheOptions) (*Matrix, error) {
	m := &Matrix{
		db:       db,
		bucket:   []byte(bucket),
		readOnly: readOnly,
		cache:    newChunkCache(opts.MaxSlots, opts.MaxBytes),
	}

	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(m.bucket)
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, bucket)
		}
		m.t = getUint32(b, keyT)
		m.n = getUint32(b, keyN)
		m.geom = Geometry{ChunkT: getUint32(b, keyChunkT), ChunkM: getUint32(b, keyChunkM)}
		m.fill = getInt32(b, keyFill)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := m.geom.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// StartDatetime returns the store epoch attribute, if one was set at
// creation time.
func (m *Matrix) StartDatetime() (string, error) {
	var s string
	err := m.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(m.bucket)
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, m.bucket)
		}
		s = string(b.Get(keyStartDatetime))
		return nil
	})
	return s, err
}

// GetDimensions returns the current (T, N) shape of the matrix.
func (m *Matrix) GetDimensions() (t, n uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t, m.n
}

// Geometry returns the fixed chunk tiling.
func (m *Matrix) Geometry() Geometry { return m.geom }

// ExtendTime grows the time axis to newT. newT == current T is a no-op;
// newT < current T fails with ErrShrink. Newly created cells read back as
// the fill value (0) because chunk pages are allocated lazily and a page
// that was never written decodes as all-zero.
func (m *Matrix) ExtendTime(newT uint32) error {
	if m.readOnly {
		return ErrReadOnly
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if newT == m.t {
		return nil
	}
	if newT < m.t {
		return ErrShrink
	}

	return m.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(m.bucket)
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, m.bucket)
		}
		putUint32(b, keyT, newT)
		m.t = newT
		return nil
	})
}

// Flush synchronously persists every dirty chunk to the backing bucket
// and invalidates the cached read copies of the chunks it touched, so a
// subsequent read re-fetches the just-written bytes rather than trusting
// an in-memory copy that may now be stale relative to disk layout changes
// made outside this handle.
func (m *Matrix) Flush() error {
	if m.readOnly {
		return ErrReadOnly
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *Matrix) flushLocked() error {
	dirty := m.cache.dirtyEntries()
	if len(dirty) == 0 {
		return nil
	}

	err := m.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(m.bucket)
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, m.bucket)
		}
		chunks := b.Bucket(chunksBucketName)
		for _, entry := range dirty {
			row, col := splitChunkKey(entry.key)
			if err := chunks.Put(encodeChunkCoordKey(row, col), encodeChunkPayload(entry.data)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("matrix: flush: %w", err)
	}

	keys := make([]chunkKey, len(dirty))
	for i, entry := range dirty {
		entry.dirty = false
		keys[i] = entry.key
	}
	m.cache.evictKeys(keys)
	return nil
}

// Close flushes any remaining dirty chunks and releases the handle. It
// does not close the underlying bbolt.DB, which may be shared by other
// matrix handles within the same store (population_data and
// population_new live in one file).
func (m *Matrix) Close() error {
	if m.readOnly {
		return nil
	}
	return m.Flush()
}

func splitChunkKey(k chunkKey) (row, col uint32) {
	return uint32(uint64(k) >> 32), uint32(uint64(k))
}

func encodeChunkCoordKey(row, col uint32) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], row)
	binary.BigEndian.PutUint32(buf[4:8], col)
	return buf
}

func encodeChunkPayload(data []int32) []byte {
	buf := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], uint32(v))
	}
	return buf
}

func decodeChunkPayload(buf []byte, cells int) []int32 {
	data := make([]int32, cells)
	n := len(buf) / 4
	if n > cells {
		n = cells
	}
	for i := 0; i < n; i++ {
		data[i] = int32(binary.LittleEndian.Uint32(buf[i*4 : i*4+4]))
	}
	return data
}

func putUint32(b *bbolt.Bucket, key []byte, v uint32) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	_ = b.Put(key, buf)
}

func getUint32(b *bbolt.Bucket, key []byte) uint32 {
	v := b.Get(key)
	if len(v) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(v)
}

func putInt32(b *bbolt.Bucket, key []byte, v int32) {
	putUint32(b, key, uint32(v))
}

func getInt32(b *bbolt.Bucket, key []byte) int32 {
	return int32(getUint32(b, key))
}
