package domain

// MarketState is the outcome of one auction round.
// States are appended once per round in day order and never modified;
// detection attaches scores to a copy.
type MarketState struct {
	Day               int      `json:"day"`
	Price             float64  `json:"price"`
	Volume            float64  `json:"volume"`
	SentimentValue    *float64 `json:"sentiment_value"`
	ManipulationScore *float64 `json:"manipulation_score"`

	// Curve summaries, so detectors never need the order batches.
	BuyDepth  float64 `json:"buy_depth"`
	SellDepth float64 `json:"sell_depth"`
	Imbalance float64 `json:"imbalance"`

	// Manipulator phase during the round. Empty when no manipulator runs.
	Phase string `json:"phase,omitempty"`
}

// Float64Ptr is a small helper for the optional fields.
func Float64Ptr(v float64) *float64 {
	return &v
}

// Prices extracts the price series.
func Prices(states []MarketState) []float64 {
	out := make([]float64, len(states))
	for i, s := range states {
		out[i] = s.Price
	}
	return out
}

// Volumes extracts the volume series.
func Volumes(states []MarketState) []float64 {
	out := make([]float64, len(states))
	for i, s := range states {
		out[i] = s.Volume
	}
	return out
}
