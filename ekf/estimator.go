package ekf

import (
	"github.com/skelterjohn/go.matrix"
	"github.com/westphae/quaternion"
)

// Estimator owns the filter state and runs one predict/correct cycle per
// measurement.  It is not safe for concurrent use: one goroutine should drive
// it and hand copies of the Attitude to anyone else.
type Estimator struct {
	cfg Config

	q quaternion.Quaternion // Current estimate, body to reference
	p *matrix.DenseMatrix   // Covariance of q, 4x4

	process   ProcessModel
	model     MeasurementModel
	corrector KalmanCorrector

	hist  *history
	stats Stats
}

// New returns an Estimator initialized from cfg.
func New(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Estimator{
		cfg: cfg,
		process: ProcessModel{
			Q:       cfg.processNoise(),
			MaxDt:   cfg.MaxDt,
			MinNorm: cfg.MinQuaternionNorm,
		},
		model: MeasurementModel{
			Gravity:  unit3(cfg.ReferenceGravity),
			Magnetic: unit3(cfg.ReferenceMagnetic),
			R:        cfg.measurementNoise(),
			MinNorm:  cfg.MinVectorNorm,
		},
		corrector: KalmanCorrector{
			MinDet:  cfg.MinInnovationDet,
			MinNorm: cfg.MinQuaternionNorm,
		},
		hist: newHistory(cfg.HistorySize),
	}
	e.Reset()
	return e, nil
}

// Reset puts the estimator back to its configured initial attitude and
// covariance and clears the history and counters.
func (e *Estimator) Reset() {
	e.q, _ = Normalize(e.cfg.InitialAttitude, e.cfg.MinQuaternionNorm)
	e.p = e.cfg.initialCovariance()
	e.stats = Stats{}
	e.hist.clear()
}

// Ingest runs one filter cycle with measurement m taken dt seconds after
// the previous one, and returns the resulting estimate.
// An unusable dt or gyro reading holds the state for the cycle; an unusable
// accelerometer reading or a singular update skips the correction.
func (e *Estimator) Ingest(m Measurement, dt float64) Attitude {
	e.stats.Cycles++

	q, p, predicted, reset := e.process.Predict(e.q, e.p, m.Gyro, dt)
	if !predicted {
		e.stats.Held++
		return e.publish(false, false)
	}
	e.commit(q, p, reset)

	corrected := false
	if l, ok := e.model.Linearize(e.q, &m); ok {
		q, p, corrected, reset = e.corrector.Correct(e.q, e.p, l)
		if corrected {
			e.commit(q, p, reset)
			if !l.UseMag {
				e.stats.AccelOnly++
			}
		}
	}
	if !corrected {
		e.stats.SkippedCorrection++
	}
	return e.publish(true, corrected)
}

func (e *Estimator) commit(q quaternion.Quaternion, p *matrix.DenseMatrix, reset bool) {
	if reset {
		// The estimate collapsed; start over from no knowledge of the attitude.
		e.stats.Resets++
		e.q = Identity
		e.p = e.cfg.initialCovariance()
		return
	}
	e.q, e.p = q, p
}

func (e *Estimator) publish(predicted, corrected bool) Attitude {
	a := e.attitude(predicted, corrected)
	e.hist.push(a)
	return a
}

func (e *Estimator) attitude(predicted, corrected bool) Attitude {
	yaw, pitch, roll := ToEuler(e.q)
	return Attitude{
		Q:         e.q,
		Yaw:       yaw,
		Pitch:     pitch,
		Roll:      roll,
		Predicted: predicted,
		Corrected: corrected,
		Seq:       e.stats.Cycles,
	}
}

// Attitude returns the most recent estimate, or the initial attitude before
// the first cycle.
func (e *Estimator) Attitude() Attitude {
	if a, ok := e.hist.latest(); ok {
		return a
	}
	return e.attitude(false, false)
}

// History returns the retained estimates, oldest first.
func (e *Estimator) History() []Attitude {
	return e.hist.list()
}

// Covariance returns a copy of the current 4x4 covariance.
func (e *Estimator) Covariance() *matrix.DenseMatrix {
	return e.p.Copy()
}

// Stats returns the cycle counters.
func (e *Estimator) Stats() Stats {
	return e.stats
}

// Config returns the configuration the estimator was built with.
func (e *Estimator) Config() Config {
	return e.cfg
}
