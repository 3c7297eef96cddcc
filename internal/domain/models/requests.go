package models

// Requests for the export/control HTTP endpoints. Defined in domain for
// consistency and reuse.

type SignalsRequest struct {
	Instrument string `query:"instrument" json:"instrument"`
	// Since accepts RFC3339 or unix seconds; empty means no lower bound.
	Since string `query:"since" json:"since"`
	Limit int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type RejectionsRequest struct {
	Instrument string `query:"instrument" json:"instrument"`
	Reason     string `query:"reason" json:"reason" validate:"omitempty,oneof=insufficient_data no_consensus cooldown_active concurrency_exceeded confidence_floor overtrading spread_guard expired"`
	Since      string `query:"since" json:"since"`
	Limit      int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}

type ReleaseRequest struct {
	Instrument  string `json:"instrument" validate:"required"`
	ExecutionID string `json:"execution_id" validate:"required,uuid"`
}
