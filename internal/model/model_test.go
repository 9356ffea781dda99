package model_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hydrosim/internal/bucket"
	"github.com/san-kum/hydrosim/internal/decl"
	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/integrators"
	"github.com/san-kum/hydrosim/internal/model"
	"github.com/san-kum/hydrosim/internal/resolve"
	"github.com/san-kum/hydrosim/internal/route"
)

func mustFlux(f decl.Flux, err error) decl.Flux {
	Expect(err).NotTo(HaveOccurred())
	return f
}

func mustState(s decl.StateFlux, err error) decl.StateFlux {
	Expect(err).NotTo(HaveOccurred())
	return s
}

// snowBucket splits precipitation into snow and rain and melts linearly.
func snowBucket() *bucket.Bucket {
	cold := decl.Binary{Op: "<", L: decl.V("temp"), R: decl.P("tmin")}
	snowfall := mustFlux(decl.Eq("snowfall", decl.If(cold, decl.V("prcp"), decl.N(0))))
	rainfall := mustFlux(decl.Eq("rainfall", decl.Sub(decl.V("prcp"), decl.V("snowfall"))))
	melt := mustFlux(decl.Eq("melt", decl.Fn("clamp",
		decl.Mul(decl.P("ddf"), decl.Sub(decl.V("temp"), decl.P("tmax"))), decl.N(0), decl.V("snowpack"))))
	pack := mustState(decl.NewExprState("snowpack", decl.Sub(decl.V("snowfall"), decl.V("melt"))))

	b, err := bucket.New("snow", []decl.Flux{snowfall, rainfall, melt}, []decl.StateFlux{pack})
	Expect(err).NotTo(HaveOccurred())
	return b
}

// soilBucket is evap = clamp(pet, 0, S); q = k*S; S' = rainfall + melt - evap - q.
func soilBucket() *bucket.Bucket {
	evap := mustFlux(decl.Eq("evap", decl.Fn("clamp", decl.V("pet"), decl.N(0), decl.V("soilwater"))))
	q := mustFlux(decl.Eq("q", decl.Mul(decl.P("k"), decl.V("soilwater"))))
	sw := mustState(decl.NewExprState("soilwater",
		decl.Sub(decl.Sub(decl.Add(decl.V("rainfall"), decl.V("melt")), decl.V("evap")), decl.V("q"))))

	b, err := bucket.New("soil", []decl.Flux{evap, q}, []decl.StateFlux{sw})
	Expect(err).NotTo(HaveOccurred())
	return b
}

var params = dynamo.Scalars(map[string]float64{
	"tmin": 0, "tmax": 1, "ddf": 2, "k": 0.1,
})

func forcing(prcp, temp, pet []float64) *dynamo.Array {
	in, err := dynamo.FromRows([][]float64{prcp, temp, pet})
	Expect(err).NotTo(HaveOccurred())
	return in
}

var _ = Describe("Model", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("construction", func() {
		It("indexes every unit input against earlier variables", func() {
			m, err := model.New("exphydro", []dynamo.Unit{snowBucket(), soilBucket()},
				[]string{"prcp", "temp", "pet"}, []string{"q", "snowpack"})
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Variables()).To(Equal([]string{
				"prcp", "temp", "pet",
				"snowpack", "snowfall", "rainfall", "melt",
				"soilwater", "evap", "q",
			}))
			Expect(m.Params()).To(ConsistOf("tmin", "ddf", "tmax", "k"))
		})

		It("fails immediately on an unresolvable input, naming it", func() {
			_, err := model.New("bad", []dynamo.Unit{soilBucket(), snowBucket()},
				[]string{"prcp", "temp", "pet"}, nil)
			Expect(errors.Is(err, dynamo.ErrMissingInput)).To(BeTrue())

			var cfgErr *dynamo.ConfigError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(cfgErr.Unit).To(Equal("soil"))
			Expect(cfgErr.Name).To(Or(Equal("rainfall"), Equal("melt")))
		})

		It("rejects unknown output selections", func() {
			_, err := model.New("bad", []dynamo.Unit{snowBucket()}, []string{"prcp", "temp"}, []string{"runoff"})
			Expect(err).To(MatchError(dynamo.ErrMissingInput))
		})

		It("sorts units by name dependencies when asked", func() {
			m, err := model.Sorted("exphydro", []dynamo.Unit{soilBucket(), snowBucket()},
				[]string{"prcp", "temp", "pet"}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Units()[0].Name()).To(Equal("snow"))
		})

		It("keeps units that are already in dependency order", func() {
			units := []dynamo.Unit{snowBucket(), soilBucket()}
			Expect(resolve.Valid(units, resolve.UnitIO)).To(BeTrue())
			m, err := model.Sorted("exphydro", units, []string{"prcp", "temp", "pet"}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Units()).To(HaveLen(2))
			Expect(m.Units()[0].Name()).To(Equal("snow"))
			Expect(m.Units()[1].Name()).To(Equal("soil"))

			Expect(resolve.Valid([]dynamo.Unit{soilBucket(), snowBucket()}, resolve.UnitIO)).To(BeFalse())
		})

		It("rejects cyclic unit graphs", func() {
			a := mustFlux(decl.Eq("a", decl.V("b")))
			b := mustFlux(decl.Eq("b", decl.V("a")))
			ua, err := bucket.New("ua", []decl.Flux{a}, nil)
			Expect(err).NotTo(HaveOccurred())
			ub, err := bucket.New("ub", []decl.Flux{b}, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = model.Sorted("loop", []dynamo.Unit{ua, ub}, nil, nil)
			Expect(errors.Is(err, dynamo.ErrCycle)).To(BeTrue())
		})
	})

	Describe("running", func() {
		var m *model.Model

		BeforeEach(func() {
			var err error
			m, err = model.New("exphydro", []dynamo.Unit{snowBucket(), soilBucket()},
				[]string{"prcp", "temp", "pet"}, []string{"snowpack", "soilwater", "q"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("wires snowmelt into the soil bucket", func() {
			in := forcing(
				[]float64{10, 0, 0, 0},
				[]float64{-5, 3, 3, 3},
				[]float64{0, 0, 0, 0},
			)
			res, err := m.Run(ctx, in, params, dynamo.RunConfig{Stepper: integrators.NewEuler()})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Names).To(Equal([]string{"snowpack", "soilwater", "q"}))

			snow, _ := res.Series("snowpack", 0)
			// falls as snow, then melts at ddf*(3-1) = 4 per step
			Expect(snow).To(Equal([]float64{0, 10, 6, 2}))

			soil, _ := res.Series("soilwater", 0)
			Expect(soil[0]).To(Equal(0.0))
			Expect(soil[1]).To(Equal(0.0))
			Expect(soil[2]).To(BeNumerically("~", 4, 1e-12))
			Expect(soil[3]).To(BeNumerically("~", 4*0.9+4, 1e-12))
		})

		It("reproduces the single-bucket scenario through the composite", func() {
			evap := mustFlux(decl.Eq("evap", decl.Fn("clamp", decl.V("pet"), decl.N(0), decl.V("S"))))
			s := mustState(decl.NewExprState("S", decl.Sub(decl.V("precip"), decl.V("evap"))))
			u, err := bucket.New("bucket", []decl.Flux{evap}, []decl.StateFlux{s})
			Expect(err).NotTo(HaveOccurred())

			single, err := model.New("single", []dynamo.Unit{u}, []string{"precip", "pet"}, []string{"S", "evap"})
			Expect(err).NotTo(HaveOccurred())
			in, err := dynamo.FromRows([][]float64{{10, 0, 0}, {2, 2, 2}})
			Expect(err).NotTo(HaveOccurred())

			res, err := single.Run(ctx, in, dynamo.ParamSet{}, dynamo.RunConfig{
				Times:      []float64{0, 1, 2},
				InitStates: map[string][]float64{"S": {5}},
			})
			Expect(err).NotTo(HaveOccurred())
			S, _ := res.Series("S", 0)
			e, _ := res.Series("evap", 0)
			Expect(S).To(Equal([]float64{5, 13, 11}))
			Expect(e).To(Equal([]float64{2, 2, 2}))
		})

		It("fails fast on a missing parameter, naming it", func() {
			in := forcing([]float64{1}, []float64{1}, []float64{1})
			_, err := m.Run(ctx, in, dynamo.Scalars(map[string]float64{"tmin": 0, "tmax": 1, "ddf": 2}), dynamo.RunConfig{})
			Expect(errors.Is(err, dynamo.ErrMissingParam)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(`"k"`))
		})

		It("rejects input with the wrong number of variables", func() {
			in, err := dynamo.FromRows([][]float64{{1}, {1}})
			Expect(err).NotTo(HaveOccurred())
			_, err = m.Run(ctx, in, params, dynamo.RunConfig{})
			Expect(errors.Is(err, dynamo.ErrShape)).To(BeTrue())
		})

		It("rejects initial values for unknown states", func() {
			in := forcing([]float64{1}, []float64{1}, []float64{1})
			_, err := m.Run(ctx, in, params, dynamo.RunConfig{InitStates: map[string][]float64{"groundwater": {1}}})
			Expect(errors.Is(err, dynamo.ErrMissingState)).To(BeTrue())
		})

		It("flags solver failures without erroring", func() {
			in := forcing([]float64{1, 1, 1}, []float64{5, 5, 5}, []float64{0, 0, 0})
			stiff := dynamo.Scalars(map[string]float64{"tmin": 0, "tmax": 1, "ddf": 2, "k": 80})
			res, err := m.Run(ctx, in, stiff, dynamo.RunConfig{
				Stepper:    integrators.NewRK45WithConfig(integrators.Config{MaxSteps: 2, RelTol: 1e-14, AbsTol: 1e-14}),
				InitStates: map[string][]float64{"soilwater": {1}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Failed()).To(BeTrue())
			Expect(res.Failure).To(MatchError(ContainSubstring("soil")))
		})
	})

	Describe("with a routing unit", func() {
		It("routes bucket runoff down the network and conserves water", func() {
			topo, err := route.FromDownstream([]int{2, 2, -1})
			Expect(err).NotTo(HaveOccurred())

			outflow := mustFlux(decl.Eq("outflow", decl.Mul(decl.P("kr"), decl.V("channel"))))
			ch := mustState(decl.NewExprState("channel",
				decl.Sub(decl.Add(decl.V("q"), decl.V("upstream")), decl.V("outflow"))))
			r, err := route.New("river", []decl.Flux{outflow}, []decl.StateFlux{ch}, topo, "outflow", "upstream")
			Expect(err).NotTo(HaveOccurred())

			m, err := model.New("basin", []dynamo.Unit{snowBucket(), soilBucket(), r},
				[]string{"prcp", "temp", "pet"}, []string{"q", "upstream", "outflow", "channel"})
			Expect(err).NotTo(HaveOccurred())

			in, err := dynamo.FromNodeRows([][][]float64{
				{{5, 0, 0}, {5, 0, 0}, {5, 0, 0}},
				{{4, 4, 4}, {4, 4, 4}, {4, 4, 4}},
				{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}},
			})
			Expect(err).NotTo(HaveOccurred())
			ps := params.With("kr", 0.5)
			res, err := m.Run(ctx, in, ps, dynamo.RunConfig{})
			Expect(err).NotTo(HaveOccurred())

			up0, _ := res.Series("upstream", 0)
			Expect(up0).To(Equal([]float64{0, 0, 0}))

			out0, _ := res.Series("outflow", 0)
			out1, _ := res.Series("outflow", 1)
			up2, _ := res.Series("upstream", 2)
			for i := range up2 {
				Expect(up2[i]).To(BeNumerically("~", out0[i]+out1[i], 1e-12))
			}
		})
	})
})
