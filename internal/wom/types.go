package wom

import (
	"encoding/json"
	"time"
)

// Wire types for the subset of the API the client reads

type groupDetails struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Memberships []membership `json:"memberships"`
}

type membership struct {
	Role   string  `json:"role"`
	Player *player `json:"player"`
}

type player struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Exp         *int64 `json:"exp"`
}

// name prefers the cased display name over the lower-cased username
func (p *player) name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

type playerDetails struct {
	ID             int64           `json:"id"`
	LatestSnapshot json.RawMessage `json:"latestSnapshot"`
}

type snapshot struct {
	ID        int64        `json:"id"`
	PlayerID  int64        `json:"playerId"`
	CreatedAt time.Time    `json:"createdAt"`
	Data      snapshotData `json:"data"`
}

type snapshotData struct {
	Skills struct {
		Overall struct {
			Experience int64 `json:"experience"`
			Level      int   `json:"level"`
		} `json:"overall"`
	} `json:"skills"`
	Computed struct {
		EHP struct {
			Value float64 `json:"value"`
		} `json:"ehp"`
		EHB struct {
			Value float64 `json:"value"`
		} `json:"ehb"`
	} `json:"computed"`
}

type nameChange struct {
	ID        int64     `json:"id"`
	OldName   string    `json:"oldName"`
	NewName   string    `json:"newName"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
