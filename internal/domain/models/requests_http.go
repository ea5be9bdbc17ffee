package models

// Query/body shapes for the read API. Tags drive creasty/defaults and validator.

type TickRequest struct {
	Symbol  string `query:"symbol" json:"symbol" validate:"required"`
	Segment string `query:"segment" json:"segment" default:"crypto" validate:"oneof=crypto forex equity stock commodity"`
	Venue   string `query:"venue" json:"venue"`
}

type SeriesRequest struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Segment  string `query:"segment" json:"segment" default:"crypto" validate:"oneof=crypto forex equity stock commodity"`
	Venue    string `query:"venue" json:"venue"`
	Interval string `query:"interval" json:"interval" default:"1h" validate:"oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 12h 1d 1w"`
	Limit    int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type ListRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type EventHistoryRequest struct {
	Type  string `query:"type" json:"type" validate:"omitempty,oneof=alert.triggered signal.created market.refreshed"`
	Limit int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type TriggerAlertRequest struct {
	ID string `param:"id" json:"id" validate:"required"`
}
