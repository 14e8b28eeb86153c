package detection

import (
	"errors"
	"fmt"

	"github.com/itrapnauskas/market-simulator/pkg/safe"
)

// Weights are the ensemble weights per scorer. A zero weight disables that scorer.
type Weights struct {
	Outlier       float64 `yaml:"outlier"`
	Benford       float64 `yaml:"benford"`
	VolumeProfile float64 `yaml:"volume_profile"`
	Coordination  float64 `yaml:"coordination"`
}

// Config is the detection section of the run configuration.
type Config struct {
	Seed         uint64             `yaml:"seed"`
	Weights      Weights            `yaml:"weights"`
	VoteScore    float64            `yaml:"vote_score"`
	Outlier      OutlierConfig      `yaml:"outlier"`
	Benford      BenfordConfig      `yaml:"benford"`
	Volume       VolumeConfig       `yaml:"volume_profile"`
	Coordination CoordinationConfig `yaml:"coordination"`
}

// DefaultConfig returns the stock scorer settings.
func DefaultConfig() Config {
	return Config{
		Seed:      42,
		Weights:   Weights{Outlier: 0.30, Benford: 0.25, VolumeProfile: 0.25, Coordination: 0.20},
		VoteScore: 0.5,
		Outlier: OutlierConfig{
			Method:           MethodIsolationForest,
			Contamination:    0.1,
			Trees:            100,
			SampleSize:       256,
			VolatilityWindow: 5,
		},
		Benford:      BenfordConfig{MinSamples: 30, Significance: 0.05},
		Volume:       VolumeConfig{Window: 5, SpikeThreshold: 2.5, Clusters: 3, MaxIter: 50},
		Coordination: CoordinationConfig{Window: 10, PatternMemory: 20, PatternLength: 3, SyncThreshold: 0.7},
	}
}

// Validate rejects weights that cannot be normalized and unknown outlier methods.
func (c Config) Validate() error {
	w := []float64{c.Weights.Outlier, c.Weights.Benford, c.Weights.VolumeProfile, c.Weights.Coordination}
	total := 0.0
	for _, v := range w {
		if v < 0 || !safe.Finite(v) {
			return errors.New("detection.weights must be finite and >= 0")
		}
		total += v
	}
	if total <= 0 {
		return errors.New("detection.weights must not all be zero")
	}
	switch c.Outlier.Method {
	case "", MethodIsolationForest, MethodDistance:
	default:
		return fmt.Errorf("detection.outlier.method %q is not supported", c.Outlier.Method)
	}
	if c.VoteScore < 0 || c.VoteScore > 1 {
		return errors.New("detection.vote_score must be in [0,1]")
	}
	return nil
}
