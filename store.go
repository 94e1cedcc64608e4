// Package h5mobaku is the store façade (C9): it opens a store file, owns
// the mesh resolver and calendar that every other read/write call goes
// through, and exposes point/multi/range operations in both hour-index and
// datetime-string flavors.
package h5mobaku

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/ryuzot/h5mobaku/internal/calendar"
	"github.com/ryuzot/h5mobaku/internal/matrix"
	"github.com/ryuzot/h5mobaku/internal/meshid"
	"github.com/ryuzot/h5mobaku/internal/planner"
)

var (
	meshidListBucket = []byte("meshid_list")
	cmphDataBucket   = []byte("cmph_data")
	listKey          = []byte("list")
	tableKey         = []byte("table")
)

const populationDataBucket = "population_data"

// backing is the read/write surface a Store dispatches through. A plain
// store's backing is a *matrix.Matrix; a composed store's backing is a
// *virtual.Composite. Both satisfy this interface without either package
// depending on the other, which keeps the virtual composition layer a pure
// consumer of the matrix engine rather than a special case of it.
type backing interface {
	GetDimensions() (t, n uint32)
	ReadCell(t, mesh uint32) (int32, error)
	ReadRowSelection(t uint32, meshes []uint32) ([]int32, error)
	ReadColumnRange(t0, t1, mesh uint32) ([]int32, error)
	WriteCell(t, mesh uint32, v int32) error
	ExtendTime(newT uint32) error
	Flush() error
}

// Store is the opened handle a caller holds for the lifetime of its
// session. The resolver is built once at open time and lives as long as
// the Store, per §3's lifecycle note.
type Store struct {
	db       *bbolt.DB
	path     string
	readOnly bool
	resolver *meshid.Resolver
	cal      *calendar.Calendar
	backing  backing
	log      *zap.Logger
}

// Create makes a new store file at path over the given mesh universe, with
// startDatetime as the epoch attribute (written once, never mutated: I4).
func Create(path string, universe []uint32, startDatetime string, cfg CreateConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("store")

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("h5mobaku: create %s: %w", path, err)
	}

	resolver, err := meshid.NewResolver(universe, true)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("h5mobaku: build resolver: %w", err)
	}

	if err := writeUniverseAndTable(db, universe, resolver.TableBytes()); err != nil {
		db.Close()
		return nil, err
	}

	m, err := matrix.Create(db, populationDataBucket, cfg.Geometry, uint32(len(universe)), startDatetime, cfg.Cache)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("h5mobaku: create matrix object: %w", err)
	}

	cal, err := calendar.New(startDatetime, time.UTC)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("h5mobaku: parse epoch: %w", err)
	}

	log.Info("store created", zap.String("path", path), zap.Int("mesh_count", len(universe)), zap.String("epoch", startDatetime))
	return &Store{db: db, path: path, resolver: resolver, cal: cal, backing: m, log: log}, nil
}

// Open opens an existing store read-only.
func Open(path string, cache matrix.CacheOptions, log *zap.Logger) (*Store, error) {
	return open(path, true, cache, log)
}

// OpenReadWrite opens an existing store for reading and writing.
func OpenReadWrite(path string, cache matrix.CacheOptions, log *zap.Logger) (*Store, error) {
	return open(path, false, cache, log)
}

func open(path string, readOnly bool, cache matrix.CacheOptions, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("store")

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("h5mobaku: open %s: %w", path, err)
	}

	universe, tableBytes, err := readUniverseAndTable(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	resolver, err := meshid.LoadResolver(universe, tableBytes, true)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	m, err := matrix.Open(db, populationDataBucket, readOnly, cache)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("h5mobaku: open matrix object: %w", err)
	}

	epoch, err := m.StartDatetime()
	if err != nil || epoch == "" {
		db.Close()
		return nil, fmt.Errorf("h5mobaku: store has no start_datetime attribute")
	}
	cal, err := calendar.New(epoch, time.UTC)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("h5mobaku: parse epoch: %w", err)
	}

	return &Store{db: db, path: path, readOnly: readOnly, resolver: resolver, cal: cal, backing: m, log: log}, nil
}

// Close flushes any dirty state (on a read-write store) and releases the
// backing file handle.
func (s *Store) Close() error {
	if !s.readOnly {
		if err := s.backing.Flush(); err != nil {
			return err
		}
	}
	return s.db.Close()
}

// Resolver exposes the store's mesh resolver, e.g. for a CLI that wants to
// report an unresolvable key before attempting a read.
func (s *Store) Resolver() *meshid.Resolver { return s.resolver }

// Calendar exposes the store's datetime conversion, parameterized by this
// store's epoch attribute.
func (s *Store) Calendar() *calendar.Calendar { return s.cal }

// GetDimensions returns the current (T, N) shape of the store's matrix.
func (s *Store) GetDimensions() (t, n uint32) { return s.backing.GetDimensions() }

// resolveAndCheck resolves a mesh key and applies the bounds policy: after
// C1 resolution, any index >= N is rejected. This parameterizes the quirk
// §4.8 documents (the reference hard-codes N=1,553,332) on the store's
// actual, currently-open N rather than a compiled-in constant.
func (s *Store) resolveAndCheck(key uint32) (uint32, error) {
	idx := s.resolver.Resolve(key)
	if idx == meshid.NotFound {
		return 0, fmt.Errorf("%w: mesh key %d", ErrNotFound, key)
	}
	_, n := s.backing.GetDimensions()
	if idx >= n {
		return 0, fmt.Errorf("%w: mesh index %d >= N %d", ErrNotFound, idx, n)
	}
	return idx, nil
}

// ReadCell reads the value at (hourIndex, meshKey).
func (s *Store) ReadCell(hourIndex uint32, meshKey uint32) (int32, error) {
	idx, err := s.resolveAndCheck(meshKey)
	if err != nil {
		return 0, err
	}
	return s.backing.ReadCell(hourIndex, idx)
}

// ReadCellAt is ReadCell's datetime-string flavor: datetime is converted
// to an hour-index through this store's Calendar before dispatch.
func (s *Store) ReadCellAt(datetime string, meshKey uint32) (int32, error) {
	idx, err := s.cal.ToIndex(datetime)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.ReadCell(uint32(idx), meshKey)
}

// ReadMulti reads the cells at hourIndex for each key in meshKeys, in
// request order. When the backing store is a plain (non-virtual) matrix,
// the selection planner chooses among the contiguous-hyperslab,
// element-list, and block-union read strategies; a composed (virtual)
// store is read through its own ReadRowSelection, which dispatches one
// ReadCell per mesh index to whichever slab owns the row.
func (s *Store) ReadMulti(hourIndex uint32, meshKeys []uint32) ([]int32, error) {
	if len(meshKeys) == 0 {
		return nil, nil
	}

	indices := make([]uint32, len(meshKeys))
	for i, key := range meshKeys {
		idx, err := s.resolveAndCheck(key)
		if err != nil {
			return nil, err
		}
		indices[i] = idx
	}

	m, ok := s.backing.(*matrix.Matrix)
	if !ok {
		return s.backing.ReadRowSelection(hourIndex, indices)
	}

	plan := planner.Plan(indices)
	switch plan.Strategy {
	case planner.SingleCell:
		v, err := m.ReadCell(hourIndex, plan.Cell)
		return []int32{v}, err
	case planner.ContiguousHyperslab:
		return m.ReadHyperslab(hourIndex, plan.HyperslabStart, plan.HyperslabCount)
	case planner.ElementList:
		return m.ReadRowSelection(hourIndex, plan.Elements)
	case planner.BlockUnion:
		out, _, err := m.ReadBlockUnion(hourIndex, 1, plan.Blocks)
		return out, err
	default:
		return m.ReadRowSelection(hourIndex, indices)
	}
}

// ReadMultiAt is ReadMulti's datetime-string flavor.
func (s *Store) ReadMultiAt(datetime string, meshKeys []uint32) ([]int32, error) {
	idx, err := s.cal.ToIndex(datetime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.ReadMulti(uint32(idx), meshKeys)
}

// ReadRange reads the cells for one mesh key across the hour window
// [t0, t1], inclusive.
func (s *Store) ReadRange(t0, t1 uint32, meshKey uint32) ([]int32, error) {
	idx, err := s.resolveAndCheck(meshKey)
	if err != nil {
		return nil, err
	}
	return s.backing.ReadColumnRange(t0, t1, idx)
}

// ReadRangeAt is ReadRange's datetime-string flavor.
func (s *Store) ReadRangeAt(startDatetime, endDatetime string, meshKey uint32) ([]int32, error) {
	t0, err := s.cal.ToIndex(startDatetime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	t1, err := s.cal.ToIndex(endDatetime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.ReadRange(uint32(t0), uint32(t1), meshKey)
}

// WriteCell writes v at (hourIndex, meshKey).
func (s *Store) WriteCell(hourIndex uint32, meshKey uint32, v int32) error {
	if s.readOnly {
		return ErrReadOnly
	}
	idx, err := s.resolveAndCheck(meshKey)
	if err != nil {
		return err
	}
	return s.backing.WriteCell(hourIndex, idx, v)
}

// WriteCellAt is WriteCell's datetime-string flavor.
func (s *Store) WriteCellAt(datetime string, meshKey uint32, v int32) error {
	idx, err := s.cal.ToIndex(datetime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.WriteCell(uint32(idx), meshKey, v)
}

// ExtendTime grows the store's time axis to newT.
func (s *Store) ExtendTime(newT uint32) error {
	if s.readOnly {
		return ErrReadOnly
	}
	return s.backing.ExtendTime(newT)
}

// Flush synchronously persists dirty chunks.
func (s *Store) Flush() error {
	if s.readOnly {
		return ErrReadOnly
	}
	return s.backing.Flush()
}

// Matrix exposes the plain backing matrix handle for callers that need the
// lower-level C5 contract directly, e.g. the ingestion pipeline (C7) or a
// virtual-composition call (C8). It returns false for a store already
// composed over two slabs.
func (s *Store) Matrix() (*matrix.Matrix, bool) {
	m, ok := s.backing.(*matrix.Matrix)
	return m, ok
}

func writeUniverseAndTable(db *bbolt.DB, universe []uint32, table []byte) error {
	return db.Update(func(tx *bbolt.Tx) error {
		lb, err := tx.CreateBucket(meshidListBucket)
		if err != nil {
			return fmt.Errorf("h5mobaku: create meshid_list: %w", err)
		}
		buf := make([]byte, len(universe)*4)
		for i, key := range universe {
			binary.BigEndian.PutUint32(buf[i*4:i*4+4], key)
		}
		if err := lb.Put(listKey, buf); err != nil {
			return err
		}

		cb, err := tx.CreateBucket(cmphDataBucket)
		if err != nil {
			return fmt.Errorf("h5mobaku: create cmph_data: %w", err)
		}
		return cb.Put(tableKey, table)
	})
}

func readUniverseAndTable(db *bbolt.DB) ([]uint32, []byte, error) {
	var universe []uint32
	var table []byte
	err := db.View(func(tx *bbolt.Tx) error {
		lb := tx.Bucket(meshidListBucket)
		if lb == nil {
			return fmt.Errorf("%w: meshid_list", ErrNotFound)
		}
		raw := lb.Get(listKey)
		universe = make([]uint32, len(raw)/4)
		for i := range universe {
			universe[i] = binary.BigEndian.Uint32(raw[i*4 : i*4+4])
		}

		cb := tx.Bucket(cmphDataBucket)
		if cb == nil {
			return fmt.Errorf("%w: cmph_data", ErrNotFound)
		}
		table = append([]byte(nil), cb.Get(tableKey)...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return universe, table, nil
}
