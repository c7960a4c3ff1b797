package models

// Requests for the operator HTTP API. Defined in domain for consistency and reuse.

type ClustersRequest struct {
	Ticker     string `query:"ticker" json:"ticker"`
	Conviction string `query:"conviction" json:"conviction" default:"low" validate:"oneof=low medium high critical"`
	From       string `query:"from" json:"from"`
	To         string `query:"to" json:"to"`
	Limit      int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type AnomaliesRequest struct {
	Ticker string `query:"ticker" json:"ticker"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type BaselineRequest struct {
	Ticker string `param:"ticker" json:"ticker" validate:"required"`
}

type OverviewRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

// OutcomeRequest supplies the realized move for a previously emitted cluster.
// Moves are percent changes from the cluster's reference price.
type OutcomeRequest struct {
	ClusterID string  `json:"cluster_id" validate:"required,uuid4"`
	Move1m    float64 `json:"move_1m"`
	Move5m    float64 `json:"move_5m"`
	Move15m   float64 `json:"move_15m"`
}
