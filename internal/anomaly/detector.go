package anomaly

import (
	"math/rand"
	"sync/atomic"

	"go.uber.org/zap"
)

// RiskTier is the discrete severity classification derived from the
// continuous anomaly score.
type RiskTier string

const (
	TierLow    RiskTier = "LOW"
	TierMedium RiskTier = "MEDIUM"
	TierHigh   RiskTier = "HIGH"
)

// Risk-tier cut points over the model's native score range. Empirically
// chosen; tunable via config but the defaults must not drift without a
// recalibration of the baseline model.
const (
	HighRiskThreshold   = -0.15
	MediumRiskThreshold = -0.05
)

// Baseline training parameters. The seed is fixed so every process trains the
// same frozen model.
const (
	baselineSeed    = 42
	baselineSamples = 500
	contamination   = 0.05
	numTrees        = 100
	subsampleSize   = 256
)

// Assessment is the result of scoring one reading. It is consumed immediately
// by the ingestion pipeline and never persisted as a whole.
type Assessment struct {
	Score     float64
	Tier      RiskTier
	IsOutlier bool
}

// Detector wraps a frozen isolation forest trained once at startup on
// synthetic baseline vitals. After training the model is read-only, so
// concurrent Score calls need no locking; readiness is the only gate.
type Detector struct {
	log             *zap.Logger
	highThreshold   float64
	mediumThreshold float64

	forest *Forest
	ready  atomic.Bool
}

// NewDetector creates an untrained detector. Score degrades to a neutral
// assessment until TrainBaseline has completed.
func NewDetector(log *zap.Logger, highThreshold, mediumThreshold float64) *Detector {
	return &Detector{
		log:             log,
		highThreshold:   highThreshold,
		mediumThreshold: mediumThreshold,
	}
}

// TrainBaseline fits the frozen model on synthetic "normal" vectors:
// heart rate ~ N(80, 5), SpO2 ~ N(98, 1), battery ~ U(50, 100).
// One-time, non-reentrant; must complete before concurrent Score calls.
func (d *Detector) TrainBaseline() {
	rng := rand.New(rand.NewSource(baselineSeed))

	data := make([][]float64, baselineSamples)
	for i := range data {
		data[i] = []float64{
			rng.NormFloat64()*5 + 80,
			rng.NormFloat64()*1 + 98,
			50 + rng.Float64()*50,
		}
	}

	d.forest = Fit(data, numTrees, subsampleSize, contamination, rng)
	d.ready.Store(true)

	d.log.Info("anomaly model trained",
		zap.Int("samples", baselineSamples),
		zap.Int("trees", numTrees),
	)
}

// Ready reports whether the baseline model has been trained. Consulted by the
// readiness probe.
func (d *Detector) Ready() bool {
	return d.ready.Load()
}

// Score maps a vitals vector to an anomaly assessment. If the model is not
// ready it returns a neutral low-risk assessment rather than failing, so
// ingestion is never blocked on model startup.
func (d *Detector) Score(heartRate, spo2, battery float64) Assessment {
	if !d.ready.Load() {
		return Assessment{Score: 0.0, Tier: TierLow, IsOutlier: false}
	}

	score := d.forest.Decision([]float64{heartRate, spo2, battery})

	return Assessment{
		Score:     score,
		Tier:      d.tierFor(score),
		IsOutlier: score < 0,
	}
}

// tierFor maps a decision score onto its discrete risk tier. The boundaries
// are exclusive: a score exactly at a threshold stays in the milder tier.
func (d *Detector) tierFor(score float64) RiskTier {
	switch {
	case score < d.highThreshold:
		return TierHigh
	case score < d.mediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}
