package storage

import (
	"encoding/json"
	"io"
	"math"
	"strconv"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// number encodes NaN and infinities as null.
type number float64

func (n number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

type ExportData struct {
	Model   string             `json:"model"`
	Method  string             `json:"method"`
	Nodes   int                `json:"nodes"`
	Steps   int                `json:"steps"`
	Times   []float64          `json:"times"`
	Failure string             `json:"failure,omitempty"`
	Metrics map[string]number  `json:"metrics,omitempty"`
	// Series maps each variable to one series per node.
	Series map[string][][]number `json:"series"`
}

// ExportJSON writes res with its metadata as indented JSON.
func ExportJSON(w io.Writer, meta RunMetadata, res *dynamo.Result) error {
	_, nodes, steps := res.Data.Dims()
	data := ExportData{
		Model:   meta.Model,
		Method:  meta.Method,
		Nodes:   nodes,
		Steps:   steps,
		Times:   res.Times,
		Metrics: make(map[string]number, len(meta.Metrics)),
		Series:  make(map[string][][]number, len(res.Names)),
	}
	for k, v := range meta.Metrics {
		data.Metrics[k] = number(v)
	}
	if res.Failure != nil {
		data.Failure = res.Failure.Error()
	}
	for v, name := range res.Names {
		perNode := make([][]number, nodes)
		for n := range perNode {
			s := res.Data.Series(v, n)
			perNode[n] = make([]number, len(s))
			for t, x := range s {
				perNode[n][t] = number(x)
			}
		}
		data.Series[name] = perNode
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
