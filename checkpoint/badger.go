package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	// Path is the directory of the database; ignored when InMemory is set.
	Path     string
	InMemory bool
	// Logger receives the database's internal logs; nil disables them.
	Logger *slog.Logger
}

// BadgerStore keeps checkpoints in a local BadgerDB, keyed by run and step.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a checkpoint database.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("checkpoint: a path is required for a persistent database")
	}
	o := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		o = badger.DefaultOptions("").WithInMemory(true)
	}
	o = o.WithNumVersionsToKeep(1).WithSyncWrites(!opts.InMemory)
	if opts.Logger != nil {
		o = o.WithLogger(badgerLogger{opts.Logger})
	} else {
		o = o.WithLogger(nil)
	}
	db, err := badger.Open(o)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error { return s.db.Close() }

func badgerKey(run string, step int) []byte {
	return fmt.Appendf(nil, "checkpoint/%s/%d", run, step)
}

func (s *BadgerStore) Save(_ context.Context, c Checkpoint) error {
	b, err := encode(c)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(c.Run, c.Step), b)
	})
	if err != nil {
		return fmt.Errorf("save checkpoint of step %d: %w", c.Step, err)
	}
	return nil
}

func (s *BadgerStore) Latest(_ context.Context, run string, step int) (*Checkpoint, error) {
	var b []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(run, step))
		if err != nil {
			return err
		}
		b, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint of step %d: %w", step, err)
	}
	return decode(b)
}

// badgerLogger adapts a slog.Logger to badger.Logger.
type badgerLogger struct{ *slog.Logger }

func (l badgerLogger) Errorf(format string, args ...any)   { l.Error(fmt.Sprintf(format, args...)) }
func (l badgerLogger) Warningf(format string, args ...any) { l.Warn(fmt.Sprintf(format, args...)) }
func (l badgerLogger) Infof(format string, args ...any)    { l.Info(fmt.Sprintf(format, args...)) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.Debug(fmt.Sprintf(format, args...)) }
