package models

import "time"

// Signal is a synthetic strategy event. It is appended once and never edited.
type Signal struct {
	ID               string     `json:"id"`
	Instrument       Instrument `json:"instrument"`
	ConditionType    string     `json:"condition_type"`
	ConditionMessage string     `json:"condition_message"`
	EntryPrice       float64    `json:"entry_price"`
	StopLoss         float64    `json:"stop_loss"`
	TargetPrice      float64    `json:"target_price"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ConditionTemplate is a label/message pair a signal can be stamped with.
type ConditionTemplate struct {
	Type    string
	Message string
}

var DefaultConditionTemplates = []ConditionTemplate{
	{Type: "EMA Crossover", Message: "EMA crossover detected"},
	{Type: "RSI Oversold", Message: "RSI < 30 - Oversold signal"},
	{Type: "RSI Overbought", Message: "RSI > 70 - Overbought signal"},
	{Type: "MACD Signal", Message: "MACD bullish crossover"},
	{Type: "Bollinger Bounce", Message: "Price hit lower Bollinger Band"},
	{Type: "Volume Spike", Message: "Unusual volume detected"},
	{Type: "Support Break", Message: "Key support level broken"},
	{Type: "Resistance Break", Message: "Key resistance level broken"},
}
