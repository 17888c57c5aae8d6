package models

// QuoteRequest selects one field of the current snapshot.
type QuoteRequest struct {
	Field     string `query:"field" validate:"required,oneof=index_level index_change_pct offshore_rate gold silver oil vix net_flow gold_silver_ratio"`
	Precision int    `query:"precision" default:"2" validate:"gte=0,lte=8"`
}

// StreamRequest configures the websocket push interval in seconds.
type StreamRequest struct {
	Interval int `query:"interval" default:"5" validate:"gte=1,lte=60"`
}
