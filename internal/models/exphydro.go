package models

import (
	"github.com/san-kum/hydrosim/internal/bucket"
	"github.com/san-kum/hydrosim/internal/decl"
	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/model"
)

// ExpHydroParams are typical values for a temperate catchment.
var ExpHydroParams = map[string]float64{
	"tmin": -1.0,
	"tmax": 1.0,
	"df":   2.5,
	"smax": 1500,
	"qmax": 20,
	"f":    0.02,
}

// NewSnowBucket partitions precipitation by temperature and melts the
// pack with a degree-day factor once temp exceeds tmax.
func NewSnowBucket(opts ...bucket.Option) (*bucket.Bucket, error) {
	var (
		temp = decl.V("temp")
		prcp = decl.V("prcp")
		pack = decl.V("snowpack")
	)
	return build("snow", opts,
		[]fluxDef{
			{"snowfall", decl.If(decl.Binary{Op: "<", L: temp, R: decl.P("tmin")}, prcp, decl.N(0))},
			{"rainfall", decl.Sub(prcp, decl.V("snowfall"))},
			{"melt", decl.If(decl.Binary{Op: ">", L: temp, R: decl.P("tmax")},
				decl.Fn("min", pack, decl.Mul(decl.P("df"), decl.Sub(temp, decl.P("tmax")))),
				decl.N(0))},
		},
		[]fluxDef{
			{"snowpack", decl.Sub(decl.V("snowfall"), decl.V("melt"))},
		})
}

// NewSoilBucket is the soil water store: evaporation limited by relative
// wetness, exponential baseflow and saturation excess.
func NewSoilBucket(opts ...bucket.Option) (*bucket.Bucket, error) {
	var (
		sw   = decl.V("soilwater")
		smax = decl.P("smax")
	)
	wet := decl.Binary{Op: ">", L: sw, R: decl.N(0)}
	return build("soil", opts,
		[]fluxDef{
			{"evap", decl.If(wet, decl.Mul(decl.V("pet"), decl.Fn("clamp", decl.Div(sw, smax), decl.N(0), decl.N(1))), decl.N(0))},
			{"baseflow", decl.If(wet,
				decl.Mul(decl.P("qmax"), decl.Fn("exp", decl.Neg(decl.Mul(decl.P("f"), decl.Fn("max", decl.N(0), decl.Sub(smax, sw)))))),
				decl.N(0))},
			{"surfaceflow", decl.Fn("max", decl.N(0), decl.Sub(sw, smax))},
			{"q", decl.Add(decl.V("baseflow"), decl.V("surfaceflow"))},
		},
		[]fluxDef{
			{"soilwater", decl.Sub(decl.Sub(decl.Add(decl.V("rainfall"), decl.V("melt")), decl.V("evap")), decl.V("q"))},
		})
}

// NewExpHydro chains the snow and soil buckets. It reads prcp, temp and
// pet and exposes every state and flux.
func NewExpHydro(o Options) (*model.Model, error) {
	snow, err := NewSnowBucket(o.Bucket...)
	if err != nil {
		return nil, err
	}
	soil, err := NewSoilBucket(o.Bucket...)
	if err != nil {
		return nil, err
	}
	return model.New("exphydro", []dynamo.Unit{snow, soil}, []string{"prcp", "temp", "pet"}, nil)
}

type fluxDef struct {
	name string
	expr decl.Expr
}

func build(name string, opts []bucket.Option, fluxes, states []fluxDef) (*bucket.Bucket, error) {
	fs := make([]decl.Flux, 0, len(fluxes))
	for _, d := range fluxes {
		f, err := decl.Eq(d.name, d.expr)
		if err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	ss := make([]decl.StateFlux, 0, len(states))
	for _, d := range states {
		s, err := decl.NewExprState(d.name, d.expr)
		if err != nil {
			return nil, err
		}
		ss = append(ss, s)
	}
	return bucket.New(name, fs, ss, opts...)
}
