// Package enkf implements a stochastic Ensemble Kalman Filter for state
// models where the propagation is nonlinear or the dimension makes explicit
// covariance propagation unattractive. Uncertainty is represented by a
// population of perturbed members; the analysis step uses sample anomaly
// covariances in place of the model matrices.
package enkf

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/linalg"
)

// #region config
// Config controls ensemble size and the analysis step.
type Config struct {
	// Members is the ensemble population size.
	Members int

	// Inflation scales the sample covariances to counter ensemble collapse.
	// Values ≤ 1 leave the sample covariance untouched.
	Inflation float64

	// PerturbObservations updates each member against a stochastically
	// perturbed copy of the measurement (the classic stochastic EnKF);
	// false updates every member against the true measurement.
	PerturbObservations bool

	// Rand is the noise source for perturbations. Nil means a time-seeded
	// source; tests inject a fixed-seed source for reproducibility.
	Rand *rand.Rand
}

// DefaultConfig returns a 50-member stochastic configuration.
func DefaultConfig() Config {
	return Config{
		Members:             50,
		Inflation:           1.02,
		PerturbObservations: true,
	}
}

// #endregion config

// Propagator advances one ensemble member through the (possibly nonlinear)
// model dynamics. It must not touch shared state: members are propagated
// concurrently.
type Propagator func(member []float64) []float64

// #region ensemble
// Ensemble holds the member population for one filter instance.
type Ensemble struct {
	members [][]float64
	rng     *rand.Rand
	cfg     Config
}

// Initialize builds an ensemble around the prior mean by perturbing it with
// Gaussian noise scaled by the prior's per-dimension standard deviation.
func Initialize(cfg Config, mean []float64, prior linalg.Matrix) *Ensemble {
	if cfg.Members <= 1 {
		cfg.Members = DefaultConfig().Members
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	dim := len(mean)
	std := make([]float64, dim)
	for i := 0; i < dim; i++ {
		v := prior[i][i]
		if v > 0 {
			std[i] = math.Sqrt(v)
		}
	}

	members := make([][]float64, cfg.Members)
	for m := range members {
		member := make([]float64, dim)
		for i := 0; i < dim; i++ {
			member[i] = mean[i] + rng.NormFloat64()*std[i]
		}
		members[m] = member
	}
	return &Ensemble{members: members, rng: rng, cfg: cfg}
}

// Size returns the member count.
func (e *Ensemble) Size() int { return len(e.members) }

// Members returns a deep copy of the population.
func (e *Ensemble) Members() [][]float64 {
	out := make([][]float64, len(e.members))
	for i, m := range e.members {
		out[i] = append([]float64(nil), m...)
	}
	return out
}

// #endregion ensemble

// #region forecast
// Forecast applies the propagator to every member. Members are independent,
// so the work fans out across goroutines; the propagator must be safe to
// call concurrently.
func (e *Ensemble) Forecast(ctx context.Context, f Propagator) error {
	if f == nil {
		return fmt.Errorf("enkf: nil propagator")
	}
	g, _ := errgroup.WithContext(ctx)
	for i := range e.members {
		g.Go(func() error {
			next := f(e.members[i])
			if len(next) != len(e.members[i]) {
				return fmt.Errorf("enkf: propagator changed dimension %d -> %d", len(e.members[i]), len(next))
			}
			e.members[i] = next
			return nil
		})
	}
	return g.Wait()
}

// #endregion forecast

// #region analyze
// Analyze folds a measurement into every member. obs maps state space to
// measurement space; r is the measurement noise covariance.
func (e *Ensemble) Analyze(z []float64, obs linalg.Matrix, r linalg.Matrix) {
	n := len(e.members)
	if n == 0 {
		return
	}
	inflation := e.cfg.Inflation
	if inflation < 1 {
		inflation = 1
	}

	mean := linalg.MeanVec(e.members)

	// Observation-space members and their mean.
	obsMembers := make([][]float64, n)
	for i, m := range e.members {
		obsMembers[i] = obs.MulVec(m)
	}
	obsMean := linalg.MeanVec(obsMembers)

	// Sample cross-covariance PHᵀ and innovation covariance HPHᵀ + R from
	// anomalies, inflated to counter collapse.
	dim := len(mean)
	obsDim := len(obsMean)
	pht := linalg.NewMatrix(dim, obsDim)
	hpht := linalg.NewMatrix(obsDim, obsDim)
	for i := 0; i < n; i++ {
		sa := linalg.SubVec(e.members[i], mean)
		oa := linalg.SubVec(obsMembers[i], obsMean)
		pht = pht.Add(linalg.Outer(sa, oa))
		hpht = hpht.Add(linalg.Outer(oa, oa))
	}
	norm := inflation / float64(n-1)
	pht = pht.Scale(norm)
	hpht = hpht.Scale(norm)

	gain := pht.Mul(hpht.Add(r).Inverse())

	// Per-member update against the true or a perturbed measurement.
	rStd := make([]float64, obsDim)
	for i := 0; i < obsDim; i++ {
		if r[i][i] > 0 {
			rStd[i] = math.Sqrt(r[i][i])
		}
	}
	for i := range e.members {
		d := append([]float64(nil), z...)
		if e.cfg.PerturbObservations {
			for j := range d {
				d[j] += e.rng.NormFloat64() * rStd[j]
			}
		}
		innovation := linalg.SubVec(d, obsMembers[i])
		e.members[i] = linalg.AddVec(e.members[i], gain.MulVec(innovation))
	}
}

// #endregion analyze

// #region moments
// Mean returns the ensemble mean, the filter's point estimate.
func (e *Ensemble) Mean() []float64 {
	return linalg.MeanVec(e.members)
}

// Covariance returns the sample covariance of the members, the filter's
// uncertainty estimate.
func (e *Ensemble) Covariance() linalg.Matrix {
	n := len(e.members)
	mean := linalg.MeanVec(e.members)
	dim := len(mean)
	cov := linalg.NewMatrix(dim, dim)
	if n < 2 {
		return cov
	}
	for _, m := range e.members {
		a := linalg.SubVec(m, mean)
		cov = cov.Add(linalg.Outer(a, a))
	}
	return cov.Scale(1.0 / float64(n-1))
}

// #endregion moments

