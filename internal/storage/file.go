package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// FileStore keeps each run in its own directory as metadata.json plus
// states.csv.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (s *FileStore) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) Save(ctx context.Context, meta RunMetadata, res *dynamo.Result) (string, error) {
	meta = stamp(meta, res)
	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "states.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteCSV(csvFile, res); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func (s *FileStore) List(ctx context.Context) ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(ctx, entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *FileStore) Load(ctx context.Context, id string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *FileStore) LoadResult(ctx context.Context, id string) (*dynamo.Result, error) {
	meta, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(s.baseDir, id, "states.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file, meta.Names, meta.Nodes)
}

// WriteCSV writes res in long form: one row per time point and node, with
// columns time, node, then one per variable.
func WriteCSV(out io.Writer, res *dynamo.Result) error {
	w := csv.NewWriter(out)

	header := append([]string{"time", "node"}, res.Names...)
	if err := w.Write(header); err != nil {
		return err
	}
	_, nodes, steps := res.Data.Dims()
	for t := 0; t < steps; t++ {
		for n := 0; n < nodes; n++ {
			row := []string{strconv.FormatFloat(res.Times[t], 'g', -1, 64), strconv.Itoa(n)}
			for v := range res.Names {
				row = append(row, strconv.FormatFloat(res.Data.At(v, n, t), 'g', -1, 64))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

// ReadCSV reads what WriteCSV wrote.
func ReadCSV(in io.Reader, names []string, nodes int) (*dynamo.Result, error) {
	r := csv.NewReader(in)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("states.csv: missing header")
	}
	if want := append([]string{"time", "node"}, names...); !slices.Equal(records[0], want) {
		return nil, fmt.Errorf("states.csv: header %v does not match %v", records[0], want)
	}
	if nodes <= 0 || (len(records)-1)%nodes != 0 {
		return nil, fmt.Errorf("states.csv: %d rows for %d nodes", len(records)-1, nodes)
	}

	steps := (len(records) - 1) / nodes
	res := &dynamo.Result{
		Names: slices.Clone(names),
		Times: make([]float64, steps),
		Data:  dynamo.NewArray(len(names), nodes, steps),
	}
	for i, record := range records[1:] {
		t, n := i/nodes, i%nodes
		if n == 0 {
			if res.Times[t], err = strconv.ParseFloat(record[0], 64); err != nil {
				return nil, fmt.Errorf("states.csv row %d: %w", i+1, err)
			}
		}
		for v := range names {
			x, err := strconv.ParseFloat(record[v+2], 64)
			if err != nil {
				return nil, fmt.Errorf("states.csv row %d: %w", i+1, err)
			}
			res.Data.Set(v, n, t, x)
		}
	}
	return res, nil
}

func sortRuns(runs []RunMetadata) {
	slices.SortFunc(runs, func(a, b RunMetadata) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}
