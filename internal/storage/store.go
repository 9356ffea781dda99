// Package storage persists run results and reads forcing series.
package storage

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

var ErrNotFound = errors.New("run not found")

type RunMetadata struct {
	ID            string               `json:"id"`
	Model         string               `json:"model"`
	Timestamp     time.Time            `json:"timestamp"`
	Seed          int64                `json:"seed"`
	Method        string               `json:"method"`
	Interpolation string               `json:"interpolation"`
	Steps         int                  `json:"steps"`
	Nodes         int                  `json:"nodes"`
	Names         []string             `json:"names"`
	Failure       string               `json:"failure,omitempty"`
	Params        map[string][]float64 `json:"params,omitempty"`
	Metrics       map[string]float64   `json:"metrics,omitempty"`
}

// Store keeps finished runs. Implementations are safe for use by one
// process at a time.
type Store interface {
	Save(ctx context.Context, meta RunMetadata, res *dynamo.Result) (string, error)
	List(ctx context.Context) ([]RunMetadata, error)
	Load(ctx context.Context, id string) (*RunMetadata, error)
	LoadResult(ctx context.Context, id string) (*dynamo.Result, error)
	Close() error
}

// stamp fills the fields derived from res and assigns a fresh ID. Metrics
// that are not finite are dropped.
func stamp(meta RunMetadata, res *dynamo.Result) RunMetadata {
	meta.ID = uuid.NewString()
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	meta.Names = append([]string(nil), res.Names...)
	meta.Steps = res.Data.Steps()
	meta.Nodes = res.Data.Nodes()
	if res.Failure != nil {
		meta.Failure = res.Failure.Error()
	}
	finite := make(map[string]float64, len(meta.Metrics))
	for k, v := range meta.Metrics {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite[k] = v
		}
	}
	meta.Metrics = finite
	return meta
}
