package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/belief"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/bifurcation"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/enkf"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/features"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/gate"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/linalg"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/logger"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region service-struct

// Service owns the canonical per-subject twin state. The sole external
// write path is observation application; all mutation of one subject runs
// under that subject's lock because Kalman cycles do not commute when
// interleaved.
type Service struct {
	repo     Repository
	gate     *gate.Gate
	extract  *features.Extractor
	detector *bifurcation.Detector
	beliefs  *belief.Engine
	log      *logger.Logger
	cfg      Config
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a fully wired service.
func New(repo Repository, log *logger.Logger, cfg Config) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		repo:     repo,
		gate:     gate.NewGate(cfg.Gate),
		extract:  features.NewExtractor(features.DefaultExtractorConfig()),
		detector: bifurcation.NewDetector(bifurcation.DefaultConfig()),
		beliefs:  belief.NewEngine(belief.DefaultConfig()),
		log:      log,
		cfg:      cfg,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetClock injects a deterministic clock; tests and the replay harness use
// this to pin time.
func (s *Service) SetClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// subjectLock returns the mutex serializing writes for one subject.
func (s *Service) subjectLock(subjectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lk, ok := s.locks[subjectID]
	if !ok {
		lk = &sync.Mutex{}
		s.locks[subjectID] = lk
	}
	return lk
}

// #endregion service-struct

// #region apply

// ApplyObservation runs one full write cycle for a subject: admission gate,
// source dispatch, per-variable filtering, composite recomputation, history
// snapshot.
func (s *Service) ApplyObservation(subjectID string, obs twin.Observation) (ApplyResult, error) {
	lk := s.subjectLock(subjectID)
	lk.Lock()
	defer lk.Unlock()

	now := s.now()
	t, err := s.loadOrCreate(subjectID, now)
	if err != nil {
		return ApplyResult{}, err
	}

	res := s.applyOne(t, obs, now)
	if res.Decision.Vetoed {
		s.log.Warn("observation rejected",
			"subject_id", subjectID, "source", obs.Source, "reason", res.Decision.Reason)
		return res, nil
	}

	if err := s.finalize(t, now); err != nil {
		return ApplyResult{}, err
	}
	res.Version = t.Version
	res.Wellbeing = t.Composites.OverallWellbeing
	s.log.Debug("observation applied",
		"subject_id", subjectID, "source", obs.Source,
		"affected", len(res.Affected), "version", t.Version)
	return res, nil
}

// ApplyBatch applies observations in ascending timestamp order, recomputing
// composites and appending one history snapshot at the end. An empty batch
// is an explicit error.
func (s *Service) ApplyBatch(subjectID string, observations []twin.Observation) (BatchResult, error) {
	if len(observations) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	sorted := append([]twin.Observation(nil), observations...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	lk := s.subjectLock(subjectID)
	lk.Lock()
	defer lk.Unlock()

	now := s.now()
	t, err := s.loadOrCreate(subjectID, now)
	if err != nil {
		return BatchResult{}, err
	}

	out := BatchResult{SubjectID: subjectID}
	affected := map[string]bool{}
	var last ApplyResult
	for _, obs := range sorted {
		last = s.applyOne(t, obs, now)
		if last.Decision.Vetoed {
			out.Rejected++
			continue
		}
		out.Applied++
		for _, id := range last.Affected {
			affected[id] = true
		}
	}

	if err := s.finalize(t, now); err != nil {
		return BatchResult{}, err
	}
	for id := range affected {
		out.Affected = append(out.Affected, id)
	}
	sort.Strings(out.Affected)
	last.Version = t.Version
	last.Wellbeing = t.Composites.OverallWellbeing
	out.Final = last
	return out, nil
}

// applyOne mutates t with a single observation under the caller-held lock.
// It does not recompute composites or persist.
func (s *Service) applyOne(t *twin.TwinState, obs twin.Observation, now time.Time) ApplyResult {
	res := ApplyResult{SubjectID: t.SubjectID}
	res.Decision = s.gate.Evaluate(obs, now)
	if res.Decision.Vetoed {
		return res
	}

	measurements := s.extract.Extract(obs, res.Decision.Attenuation)
	if len(measurements) == 0 {
		// Unknown source: informs nothing.
		s.log.Debug("unmapped observation source", "subject_id", t.SubjectID, "source", obs.Source)
		return res
	}

	for _, m := range measurements {
		v, ok := t.Variables[m.VariableID]
		if !ok {
			continue
		}
		next := twin.ApplyMeasurement(v, m, obs.Source, obs.Timestamp, now, s.cfg.Measure)
		t.Variables[m.VariableID] = next
		res.Affected = append(res.Affected, m.VariableID)
		if next.WasOutlier {
			res.Outliers = append(res.Outliers, m.VariableID)
		}
	}
	t.Version++
	t.PendingUpdates++
	return res
}

// finalize recomputes composites against retained history, stamps the
// version id, persists the twin and appends one snapshot.
func (s *Service) finalize(t *twin.TwinState, now time.Time) error {
	history, err := s.repo.History(t.SubjectID, 0)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	t.UpdatedAt = now
	t.LastSync = now
	t.PendingUpdates = 0
	t.VersionID = uuid.New().String()
	twin.RecomputeComposites(t, history)

	if err := s.repo.PutTwin(t); err != nil {
		return fmt.Errorf("put twin: %w", err)
	}
	if err := s.repo.AppendSnapshot(t); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return s.refreshBeliefs(t, now)
}

// refreshBeliefs folds the freshly committed estimates into the subject's
// dimension-level belief state, creating one on first contact.
func (s *Service) refreshBeliefs(t *twin.TwinState, now time.Time) error {
	b, ok, err := s.repo.GetBeliefs(t.SubjectID)
	if err != nil {
		return fmt.Errorf("get beliefs: %w", err)
	}
	if !ok {
		b = s.beliefs.NewState(t.SubjectID, now)
	}
	s.beliefs.UpdateBatch(b, belief.FromTwin(t, now), now)
	if err := s.repo.PutBeliefs(b); err != nil {
		return fmt.Errorf("put beliefs: %w", err)
	}
	return nil
}

// loadOrCreate returns the subject's twin, creating a default one on first
// contact.
func (s *Service) loadOrCreate(subjectID string, now time.Time) (*twin.TwinState, error) {
	t, ok, err := s.repo.GetTwin(subjectID)
	if err != nil {
		return nil, fmt.Errorf("get twin: %w", err)
	}
	if ok {
		return t, nil
	}
	s.log.Info("creating twin", "subject_id", subjectID)
	return twin.NewTwinState(subjectID, now), nil
}

// #endregion apply

// #region queries

// GetState returns a copy of the subject's current twin.
func (s *Service) GetState(subjectID string) (*twin.TwinState, error) {
	t, ok, err := s.repo.GetTwin(subjectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// GetHistory returns the retained snapshots inside the window, oldest
// first. windowDays ≤ 0 means all retained history.
func (s *Service) GetHistory(subjectID string, windowDays int) ([]*twin.TwinState, error) {
	var window time.Duration
	if windowDays > 0 {
		window = time.Duration(windowDays) * 24 * time.Hour
	}
	return s.repo.History(subjectID, window)
}

// GetBeliefReport returns the subject's persisted belief state together
// with its consistency flags and the observation type expected to carry
// the most information next.
func (s *Service) GetBeliefReport(subjectID string) (BeliefReport, error) {
	b, ok, err := s.repo.GetBeliefs(subjectID)
	if err != nil {
		return BeliefReport{}, err
	}
	if !ok {
		return BeliefReport{}, ErrNotFound
	}
	typ, dim := s.beliefs.SuggestObservation(b)
	return BeliefReport{
		State:         b,
		Flags:         s.beliefs.CheckConsistency(b),
		NextType:      typ,
		NextDimension: dim,
	}, nil
}

// #endregion queries

// #region estimate

// EstimateState refreshes a subject's estimates with the chosen strategy
// and appends the result as a new snapshot.
func (s *Service) EstimateState(subjectID string, method Method) (*twin.TwinState, error) {
	lk := s.subjectLock(subjectID)
	lk.Lock()
	defer lk.Unlock()

	now := s.now()
	t, ok, err := s.repo.GetTwin(subjectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	switch method {
	case MethodKalman:
		s.estimateKalman(t, now)
	case MethodEnsemble:
		if err := s.estimateEnsemble(t, now); err != nil {
			return nil, err
		}
	case MethodBayesian:
		if err := s.estimateBayesian(t); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("service: unknown estimation method %d", int(method))
	}

	t.Version++
	if err := s.finalize(t, now); err != nil {
		return nil, err
	}
	s.log.Debug("state estimated", "subject_id", subjectID, "method", method.String(), "version", t.Version)
	return t.Clone(), nil
}

// estimateKalman propagates each variable's uncertainty forward to now
// under random-walk dynamics: the estimate holds, the error covariance
// grows by elapsed process noise.
func (s *Service) estimateKalman(t *twin.TwinState, now time.Time) {
	for _, v := range t.Variables {
		if v.Kalman == nil {
			continue
		}
		days := now.Sub(v.LastUpdated).Hours() / 24
		if days <= 0 {
			days = 1
		}
		v.Kalman.ErrCovariance += v.Kalman.ProcessNoise * days
		v.Variance = v.Kalman.ErrCovariance
		v.LastUpdated = now
	}
}

// estimateEnsemble propagates the full variable vector through a
// mean-reverting ensemble and reads the point estimate and uncertainty
// back off the ensemble moments.
func (s *Service) estimateEnsemble(t *twin.TwinState, now time.Time) error {
	ids := twin.VariableIDs()
	mean := make([]float64, len(ids))
	prior := linalg.NewMatrix(len(ids), len(ids))
	for i, id := range ids {
		v := t.Variables[id]
		mean[i] = v.Value
		prior[i][i] = v.Variance
	}

	profile, _, err := s.repo.GetProfile(t.SubjectID)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}

	ens := enkf.Initialize(s.cfg.Ensemble, mean, prior)
	err = ens.Forecast(context.Background(), func(member []float64) []float64 {
		next := make([]float64, len(member))
		for i, id := range ids {
			rate := 0.1
			if p, ok := profile.Variables[id]; ok && p.MeanReversionRate > 0 {
				rate = p.MeanReversionRate
			}
			baseline := t.Variables[id].Baseline
			next[i] = member[i] + rate*(baseline-member[i])
		}
		return next
	})
	if err != nil {
		return fmt.Errorf("ensemble forecast: %w", err)
	}

	est := ens.Mean()
	cov := ens.Covariance()
	for i, id := range ids {
		v := t.Variables[id]
		v.Value = est[i]
		v.Variance = cov[i][i]
		if v.Variance < s.cfg.Measure.VarianceFloor {
			v.Variance = s.cfg.Measure.VarianceFloor
		}
		if v.Kalman != nil {
			v.Kalman.Estimate = v.Value
			v.Kalman.ErrCovariance = v.Variance
		}
		v.LastUpdated = now
	}
	return nil
}

// estimateBayesian fuses each variable's current estimate with its learned
// Gaussian prior by the conjugate normal-normal rule.
func (s *Service) estimateBayesian(t *twin.TwinState) error {
	profile, ok, err := s.repo.GetProfile(t.SubjectID)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	if !ok || !profile.Learned {
		// No learned priors yet: leave the estimates alone rather than
		// fusing against an uninformed prior.
		return nil
	}

	for id, p := range profile.Variables {
		v, okVar := t.Variables[id]
		if !okVar || p.PriorVariance <= 0 || v.Variance <= 0 {
			continue
		}
		priorPrec := 1 / p.PriorVariance
		obsPrec := 1 / v.Variance
		postPrec := priorPrec + obsPrec
		v.Value = (p.PriorMean*priorPrec + v.Value*obsPrec) / postPrec
		v.Variance = 1 / postPrec
		if v.Variance < s.cfg.Measure.VarianceFloor {
			v.Variance = s.cfg.Measure.VarianceFloor
		}
		if v.Kalman != nil {
			v.Kalman.Estimate = v.Value
			v.Kalman.ErrCovariance = v.Variance
		}
	}
	return nil
}

// #endregion estimate

// #region personalization

// LearnPersonalization learns the subject's dynamics profile from retained
// history and stores it. Below the snapshot threshold the stored profile is
// the zeroed default.
func (s *Service) LearnPersonalization(subjectID string) (twin.Personalization, error) {
	history, err := s.repo.History(subjectID, 0)
	if err != nil {
		return twin.Personalization{}, err
	}
	p := twin.LearnPersonalization(subjectID, history, s.now())
	if err := s.repo.PutProfile(p); err != nil {
		return twin.Personalization{}, fmt.Errorf("put profile: %w", err)
	}
	return p, nil
}

// #endregion personalization

// #region tipping-points

// DetectTippingPoints runs the early-warning engine over the subject's
// retained history. Fewer than the detector's minimum history length yields
// an empty result, never an error.
func (s *Service) DetectTippingPoints(subjectID string) ([]bifurcation.TippingPoint, error) {
	history, err := s.repo.History(subjectID, 0)
	if err != nil {
		return nil, err
	}
	return s.detector.Detect(history, s.now()), nil
}

// #endregion tipping-points
