// Package stream publishes market states to websocket clients as they clear
// and provides a reconnecting subscriber for consuming them.
package stream

import (
	"encoding/json"

	"github.com/itrapnauskas/market-simulator/internal/domain"
)

// FrameMarketState is the type tag of a state frame.
const FrameMarketState = "market_state"

// Frame is one websocket text message.
type Frame struct {
	Type  string             `json:"type"`
	State domain.MarketState `json:"state"`
}

// EncodeState marshals a state frame.
func EncodeState(s domain.MarketState) ([]byte, error) {
	return json.Marshal(Frame{Type: FrameMarketState, State: s})
}

// DecodeFrame unmarshals a frame of any type.
func DecodeFrame(msg []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(msg, &f)
	return f, err
}
