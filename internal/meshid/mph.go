package meshid

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// bucketLoad is the target average number of keys per first-level bucket.
// Smaller values shrink the displacement table at the cost of more
// displacement search per bucket; 4 is a conservative middle ground.
const bucketLoad = 4

// maxSeedAttempts bounds how many (seed0, seed1) pairs the builder will try
// before giving up; with bucketLoad=4 a single attempt almost always
// succeeds, this only guards against pathological key sets.
const maxSeedAttempts = 32

// maxDisplacement bounds the per-bucket search for a collision-free
// displacement value.
const maxDisplacement = 1 << 16

// Table holds the parameters of a "hash, displace, and compress" minimal
// perfect hash: keys are routed to a first-level bucket by h0, and each
// bucket carries a displacement value that, combined with h1, routes every
// key in that bucket to a distinct slot in [0, n).
//
// This is the in-process form of the opaque cmph_data blob named in the
// store's external interface; Marshal/UnmarshalTable convert to and from
// the bytes actually written to the store.
type Table struct {
	n            uint32
	numBuckets   uint32
	seed0        uint64
	seed1        uint64
	displacement []uint32
}

// BuildTable constructs a minimal perfect hash over keys. It is an offline,
// one-shot construction: O(n) expected time, with a bounded retry loop over
// global seeds to recover from the rare case where a seed pair leaves one
// bucket with no collision-free displacement.
func BuildTable(keys []uint32) (*Table, error) {
	n := uint32(len(keys))
	numBuckets := n/bucketLoad + 1

	for attempt := uint64(0); attempt < maxSeedAttempts; attempt++ {
		seed0 := 0x9e3779b97f4a7c15 + attempt*0xff51afd7ed558ccd
		seed1 := 0xc2b2ae3d27d4eb4f + attempt*0x165667b19e3779f9

		table, err := tryBuild(keys, n, numBuckets, seed0, seed1)
		if err == nil {
			return table, nil
		}
	}
	return nil, fmt.Errorf("meshid: exhausted %d seed attempts building minimal perfect hash for %d keys", maxSeedAttempts, n)
}

func tryBuild(keys []uint32, n, numBuckets uint32, seed0, seed1 uint64) (*Table, error) {
	buckets := make([][]uint32, numBuckets)
	for _, k := range keys {
		b := bucketOf(k, seed0, numBuckets)
		buckets[b] = append(buckets[b], k)
	}

	order := make([]uint32, numBuckets)
	for i := range order {
		order[i] = uint32(i)
	}
	// Largest buckets first: they are the hardest to place, so give them
	// first pick of the slot space.
	insertionSortByBucketSizeDesc(order, buckets)

	occupied := make([]bool, n)
	displacement := make([]uint32, numBuckets)

	slotBuf := make([]uint32, 0, 16)
	for _, b := range order {
		members := buckets[b]
		if len(members) == 0 {
			continue
		}

		found := false
		for d := uint32(0); d < maxDisplacement; d++ {
			slotBuf = slotBuf[:0]
			collision := false
			for _, k := range members {
				slot := slotOf(k, seed1, d, n)
				if occupied[slot] {
					collision = true
					break
				}
				for _, s := range slotBuf {
					if s == slot {
						collision = true
						break
					}
				}
				if collision {
					break
				}
				slotBuf = append(slotBuf, slot)
			}
			if collision {
				continue
			}

			for _, s := range slotBuf {
				occupied[s] = true
			}
			displacement[b] = d
			found = true
			break
		}
		if !found {
			return nil, fmt.Errorf("meshid: no displacement found for bucket %d (%d keys)", b, len(members))
		}
	}

	return &Table{
		n:            n,
		numBuckets:   numBuckets,
		seed0:        seed0,
		seed1:        seed1,
		displacement: displacement,
	}, nil
}

// insertionSortByBucketSizeDesc sorts order in place by len(buckets[order[i]])
// descending. Bucket counts are small (numBuckets ~ n/4) so a plain
// insertion sort keeps this file free of a sort.Slice closure allocation.
func insertionSortByBucketSizeDesc(order []uint32, buckets [][]uint32) {
	for i := 1; i < len(order); i++ {
		j := i
		for j > 0 && len(buckets[order[j-1]]) < len(buckets[order[j]]) {
			order[j-1], order[j] = order[j], order[j-1]
			j--
		}
	}
}

// Index returns the candidate slot for key. The caller (Resolver) is
// responsible for verifying the result against the universe list; Index
// itself never returns an error because an out-of-universe key has no
// well-defined slot.
func (t *Table) Index(key uint32) uint32 {
	b := bucketOf(key, t.seed0, t.numBuckets)
	d := t.displacement[b]
	return slotOf(key, t.seed1, d, t.n)
}

func bucketOf(key uint32, seed uint64, numBuckets uint32) uint32 {
	return uint32(hashWithSeed(seed, key, 0) % uint64(numBuckets))
}

func slotOf(key uint32, seed uint64, displacement uint32, n uint32) uint32 {
	return uint32(hashWithSeed(seed, key, displacement) % uint64(n))
}

// hashWithSeed derives one of an unbounded family of hashes from a single
// hash function (xxhash) by mixing the seed and displacement into the
// input bytes rather than depending on a seeded-constructor API, the same
// "one hash family, many probes" trick used for bloom filter k-probes.
func hashWithSeed(seed uint64, key, displacement uint32) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], seed)
	binary.LittleEndian.PutUint32(buf[8:12], key)
	binary.LittleEndian.PutUint32(buf[12:16], displacement)
	return xxhash.Sum64(buf[:])
}

// Marshal encodes the table as the opaque byte blob persisted under the
// cmph_data object name.
func (t *Table) Marshal() []byte {
	buf := make([]byte, 4+4+8+8+4*len(t.displacement))
	binary.LittleEndian.PutUint32(buf[0:4], t.n)
	binary.LittleEndian.PutUint32(buf[4:8], t.numBuckets)
	binary.LittleEndian.PutUint64(buf[8:16], t.seed0)
	binary.LittleEndian.PutUint64(buf[16:24], t.seed1)
	for i, d := range t.displacement {
		binary.LittleEndian.PutUint32(buf[24+4*i:28+4*i], d)
	}
	return buf
}

// UnmarshalTable decodes a blob produced by Marshal.
func UnmarshalTable(buf []byte) (*Table, error) {
	if len(buf) < 24 {
		return nil, fmt.Errorf("meshid: truncated minimal perfect hash blob (%d bytes)", len(buf))
	}
	t := &Table{
		n:          binary.LittleEndian.Uint32(buf[0:4]),
		numBuckets: binary.LittleEndian.Uint32(buf[4:8]),
		seed0:      binary.LittleEndian.Uint64(buf[8:16]),
		seed1:      binary.LittleEndian.Uint64(buf[16:24]),
	}
	rest := buf[24:]
	if len(rest) != 4*int(t.numBuckets) {
		return nil, fmt.Errorf("meshid: minimal perfect hash blob size mismatch: want %d bucket entries, got %d bytes", t.numBuckets, len(rest))
	}
	t.displacement = make([]uint32, t.numBuckets)
	for i := range t.displacement {
		t.displacement[i] = binary.LittleEndian.Uint32(rest[4*i : 4*i+4])
	}
	return t, nil
}
