package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/clanadmin/internal/api/handler"
	"github.com/mcoot/clanadmin/internal/api/middleware"
	sharedmw "github.com/mcoot/clanadmin/internal/middleware"
	"github.com/mcoot/clanadmin/internal/scheduler"
	"github.com/mcoot/clanadmin/internal/services/auth"
	"github.com/mcoot/clanadmin/internal/services/roster"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger        *slog.Logger
	AuthService   *auth.Service
	Runner        *scheduler.Runner
	RosterService *roster.Service
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	runHandler := handler.NewRunHandler(cfg.Runner)
	memberHandler := handler.NewMemberHandler(cfg.RosterService)

	staffAuth := middleware.StaffAuth(cfg.AuthService)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(sharedmw.Logging(cfg.Logger))

	// Read-only routes (no auth)
	api.HandleFunc("/health", runHandler.Health).Methods(http.MethodGet)
	api.HandleFunc("/members/{rsn}", memberHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/members/{rsn}/rank-history", memberHandler.RankHistory).Methods(http.MethodGet)
	api.HandleFunc("/points/leaderboard", memberHandler.Leaderboard).Methods(http.MethodGet)

	// Mutating routes require a staff token
	staff := api.NewRoute().Subrouter()
	staff.Use(staffAuth)
	staff.HandleFunc("/sync", runHandler.Sync).Methods(http.MethodPost)
	staff.HandleFunc("/inactivity", runHandler.Inactivity).Methods(http.MethodPost)
	staff.HandleFunc("/members/{rsn}/rank", memberHandler.SetRank).Methods(http.MethodPost)
	staff.HandleFunc("/members/{rsn}/points", memberHandler.AddPoints).Methods(http.MethodPost)
	staff.HandleFunc("/members/{rsn}/exemption", memberHandler.Exempt).Methods(http.MethodPost)
	staff.HandleFunc("/ranks/bulk", memberHandler.BulkRank).Methods(http.MethodPost)
	staff.HandleFunc("/points/bulk", memberHandler.BulkPoints).Methods(http.MethodPost)

	return r
}
