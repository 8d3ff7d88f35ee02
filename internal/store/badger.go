package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// BadgerOptions configures a Badger store.
type BadgerOptions struct {
	Dir      string
	InMemory bool // no disk persistence; for tests
}

// Badger keeps records as msgpack values under "embedding/<model>/<path>".
type Badger struct {
	db *badger.DB
}

// OpenBadger opens or creates the database.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: badger dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(slogLogger{})
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(slogLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func modelPrefix(model string) []byte {
	return []byte("embedding/" + model + "/")
}

func recordKey(model, path string) []byte {
	return append(modelPrefix(model), path...)
}

func (b *Badger) Save(_ context.Context, rec Record) error {
	val, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.Model, rec.Path), val)
	})
}

func (b *Badger) Get(_ context.Context, model, path string) (Record, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(model, path))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := msgpack.Unmarshal(val, &rec); err != nil {
		return Record{}, fmt.Errorf("store: decode record: %w", err)
	}
	return rec, nil
}

// List returns every record for model in key order.
func (b *Badger) List(_ context.Context, model string) ([]Record, error) {
	prefix := modelPrefix(model)
	var out []Record
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec Record
			if err := msgpack.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("store: decode record: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Nearest scans every record for model and ranks them by cosine distance.
func (b *Badger) Nearest(ctx context.Context, model string, vec []float32, k int) ([]Record, error) {
	recs, err := b.List(ctx, model)
	if err != nil {
		return nil, err
	}
	return rankByCosine(recs, vec, k), nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// slogLogger routes badger's warnings and errors to slog and drops the rest.
type slogLogger struct{}

func (slogLogger) Errorf(f string, v ...interface{})   { slog.Error("[badger] " + fmt.Sprintf(f, v...)) }
func (slogLogger) Warningf(f string, v ...interface{}) { slog.Warn("[badger] " + fmt.Sprintf(f, v...)) }
func (slogLogger) Infof(string, ...interface{})        {}
func (slogLogger) Debugf(string, ...interface{})       {}
