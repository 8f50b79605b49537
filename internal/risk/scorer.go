package risk

import (
	"log/slog"
	"time"

	"github.com/mbd888/vigil/internal/circuitbreaker"
)

// Scorer produces a probabilistic fraud score for one evaluation. The two
// strategies are interchangeable: same inputs, same outcome shape.
type Scorer interface {
	Score(intent *TransactionIntent, uc *UserContext) *ProbabilisticOutcome
}

// HeuristicScorer is the weighted rule-of-thumb strategy, used whenever no
// trained model is loaded and as the per-call fallback when inference
// fails.
type HeuristicScorer struct{}

// NewHeuristicScorer creates the fallback scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

func (s *HeuristicScorer) Score(intent *TransactionIntent, uc *UserContext) *ProbabilisticOutcome {
	features := EngineerFeatures(intent, uc)
	return &ProbabilisticOutcome{
		ModelScore:   heuristicScore(&features, intent, uc),
		Features:     features,
		ScoringPath:  PathFallback,
		ModelVersion: "heuristic",
	}
}

// heuristicScore applies the additive weights and clamps to [0, 1].
func heuristicScore(f *FeatureSet, intent *TransactionIntent, uc *UserContext) float64 {
	score := 0.0

	if uc.Payee.RiskyHistory {
		score += 0.35
	}
	if uc.Payee.GoodHistory {
		score -= 0.15
	}

	switch {
	case f.DeviationFromSenderAvg > 10:
		score += 0.40
	case f.DeviationFromSenderAvg > 5:
		score += 0.25
	}

	if f.IsNewPayee == 1 && !uc.Payee.GoodHistory {
		score += 0.15
	}

	// Burst in the 5-minute window, or the coarser 1-hour velocity signal.
	if uc.Stats.Count5Min >= 5 || f.VelocityCheck == 1 {
		score += 0.25
	}

	// Device change is not part of the feature vector; read it from the
	// context directly.
	if intent.DeviceID != "" && !uc.Profile.KnowsDevice(intent.DeviceID) {
		score += 0.15
	}

	if f.RiskProfile > 0.7 {
		score += 0.25
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ModelScorer is the trained-model strategy. Inference failures fall back
// to the heuristic for that call only; the caller never sees the error.
// A circuit breaker skips inference entirely while the runtime is in a
// failure loop, probing it again after a cooldown.
type ModelScorer struct {
	runtime  ModelRuntime
	fallback *HeuristicScorer
	breaker  *circuitbreaker.Breaker
	logger   *slog.Logger
}

// NewModelScorer wraps a loaded model runtime.
func NewModelScorer(runtime ModelRuntime, logger *slog.Logger) *ModelScorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelScorer{
		runtime:  runtime,
		fallback: NewHeuristicScorer(),
		breaker:  circuitbreaker.New(5, 30*time.Second),
		logger:   logger,
	}
}

func (s *ModelScorer) Score(intent *TransactionIntent, uc *UserContext) *ProbabilisticOutcome {
	features := EngineerFeatures(intent, uc)

	if !s.breaker.Allow() {
		return s.fallback.Score(intent, uc)
	}

	prob, err := s.runtime.Predict(features.Vector())
	if err != nil {
		s.breaker.RecordFailure()
		s.logger.Warn("model inference failed, falling back to heuristic", "error", err)
		return s.fallback.Score(intent, uc)
	}
	s.breaker.RecordSuccess()
	if prob < 0 {
		prob = 0
	}
	if prob > 1 {
		prob = 1
	}

	return &ProbabilisticOutcome{
		ModelScore:   prob,
		Features:     features,
		ScoringPath:  PathTrained,
		ModelVersion: s.runtime.Version(),
	}
}
