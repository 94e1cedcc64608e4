package h5mobaku

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ryuzot/h5mobaku/internal/virtual"
)

// ComposeVirtual builds a composed Store (C8) over two already-open Stores:
// historical contributes rows [0, splitT), newSlab contributes everything
// from splitT onward. The returned Store inherits historical's resolver
// and Calendar (I5: a virtual matrix inherits the historical slab's epoch
// attribute) and is read-write if and only if newSlab is, since only the
// new slab is ever written through a composed Store.
//
// Both arguments must be plain (non-virtual) Stores; composing a composed
// Store is not supported, matching §4.7's "the mapping is declared once at
// virtual-matrix creation and is read-only thereafter."
func ComposeVirtual(historical, newSlab *Store, splitT uint32, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	h, ok := historical.Matrix()
	if !ok {
		return nil, fmt.Errorf("h5mobaku: historical store is already virtual")
	}
	n, ok := newSlab.Matrix()
	if !ok {
		return nil, fmt.Errorf("h5mobaku: new-slab store is already virtual")
	}

	comp, err := virtual.New(h, n, splitT)
	if err != nil {
		return nil, fmt.Errorf("h5mobaku: compose virtual store: %w", err)
	}

	log.Info("virtual store composed", zap.Uint32("split_t", splitT))
	return &Store{
		db:       newSlab.db,
		path:     newSlab.path,
		readOnly: newSlab.readOnly,
		resolver: historical.resolver,
		cal:      historical.cal,
		backing:  comp,
		log:      log,
	}, nil
}
