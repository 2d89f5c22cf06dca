package request

// SyncRequest is the request body for triggering a sync
type SyncRequest struct {
	DryRun bool `json:"dry_run"`
	Force  bool `json:"force"`
}

// SetRankRequest is the request body for setting a member's rank
type SetRankRequest struct {
	Rank string `json:"rank"`
}

// BulkRankRequest is the request body for ranking up several members
type BulkRankRequest struct {
	Rank string   `json:"rank"`
	RSNs []string `json:"rsns"`
}

// AddPointsRequest is the request body for granting event points
type AddPointsRequest struct {
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

// BulkPointsRequest is the request body for granting points to several members
type BulkPointsRequest struct {
	RSNs   []string `json:"rsns"`
	Points int      `json:"points"`
	Reason string   `json:"reason"`
}

// ExemptionRequest is the request body for exempting a member from inactivity checks
type ExemptionRequest struct {
	Reason string `json:"reason"`
}
