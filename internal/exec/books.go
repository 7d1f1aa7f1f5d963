package exec

import (
	"os"
	"path/filepath"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/internal/store"
)

// BookSource provides the orderbook snapshot used by liquidity checks.
// A nil book with a nil error means "no book available": the caller is
// expected to fail closed.
type BookSource interface {
	Snapshot(symbol string) (*schema.Orderbook, error)
}

// FileBooks reads per-symbol snapshots written by an external market
// data process, one JSON document per symbol under Dir. Snapshots older
// than MaxAge count as absent.
type FileBooks struct {
	Dir    string
	MaxAge time.Duration
	Now    func() time.Time
}

func (f FileBooks) Snapshot(symbol string) (*schema.Orderbook, error) {
	path := filepath.Join(f.Dir, symbol+".json")
	var book schema.Orderbook
	if err := store.Load(path, &book); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "load orderbook snapshot")
	}
	if f.MaxAge > 0 {
		now := time.Now
		if f.Now != nil {
			now = f.Now
		}
		age := now().Sub(time.Unix(int64(book.Ts), 0))
		if age > f.MaxAge {
			return nil, nil
		}
	}
	return &book, nil
}

// StaticBooks serves fixed snapshots, used by dry runs and tests.
type StaticBooks map[string]*schema.Orderbook

func (s StaticBooks) Snapshot(symbol string) (*schema.Orderbook, error) {
	return s[symbol], nil
}
