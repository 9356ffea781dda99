package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

const (
	metaPrefix = "run/meta/"
	dataPrefix = "run/data/"
)

// BadgerConfig configures the embedded key-value run store.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore keeps runs in a badger database: metadata and data under
// separate keys so listing never decodes trajectories.
type BadgerStore struct {
	db *badger.DB
}

// payload carries Data as little-endian float64 bits so failed, NaN-filled
// runs round-trip.
type payload struct {
	Names []string  `json:"names"`
	Times []float64 `json:"times"`
	Nodes int       `json:"nodes"`
	Steps int       `json:"steps"`
	Data  []byte    `json:"data"`
}

func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent run store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create run store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Save(ctx context.Context, meta RunMetadata, res *dynamo.Result) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}
	meta = stamp(meta, res)

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	vars, nodes, steps := res.Data.Dims()
	data := make([]byte, 0, 8*vars*nodes*steps)
	for v := 0; v < vars; v++ {
		for _, x := range res.Data.Row(v) {
			data = binary.LittleEndian.AppendUint64(data, math.Float64bits(x))
		}
	}
	dataBytes, err := json.Marshal(payload{Names: res.Names, Times: res.Times, Nodes: nodes, Steps: steps, Data: data})
	if err != nil {
		return "", err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(metaPrefix+meta.ID), metaBytes); err != nil {
			return err
		}
		return txn.Set([]byte(dataPrefix+meta.ID), dataBytes)
	})
	if err != nil {
		return "", fmt.Errorf("save run %s: %w", meta.ID, err)
	}
	return meta.ID, nil
}

func (s *BadgerStore) List(ctx context.Context) ([]RunMetadata, error) {
	runs := make([]RunMetadata, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var meta RunMetadata
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				return err
			}
			runs = append(runs, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRuns(runs)
	return runs, nil
}

func (s *BadgerStore) get(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

func (s *BadgerStore) Load(ctx context.Context, id string) (*RunMetadata, error) {
	var meta RunMetadata
	if err := s.get(metaPrefix+id, &meta); err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return &meta, nil
}

func (s *BadgerStore) LoadResult(ctx context.Context, id string) (*dynamo.Result, error) {
	var p payload
	if err := s.get(dataPrefix+id, &p); err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	if len(p.Data) != 8*len(p.Names)*p.Nodes*p.Steps {
		return nil, fmt.Errorf("load run %s: %d bytes for %d x %d x %d values", id, len(p.Data), len(p.Names), p.Nodes, p.Steps)
	}
	arr := dynamo.NewArray(len(p.Names), p.Nodes, p.Steps)
	off := 0
	for v := range p.Names {
		row := arr.Row(v)
		for i := range row {
			row[i] = math.Float64frombits(binary.LittleEndian.Uint64(p.Data[off:]))
			off += 8
		}
	}
	return &dynamo.Result{Names: p.Names, Times: p.Times, Data: arr}, nil
}
