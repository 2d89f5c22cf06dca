package factory

import (
	"log/slog"
	"time"

	"github.com/mcoot/clanadmin/internal/config"
	"github.com/mcoot/clanadmin/internal/dependencies/mocks"
	"github.com/mcoot/clanadmin/internal/storage/memory"
	"github.com/mcoot/clanadmin/internal/wom/womtest"
)

// Test group settings served by the fake roster service
const (
	TestGroupID = "4321"
	TestAPIKey  = "test-key"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock *mocks.MockClock
	MockIDs   *mocks.MockIDs
	WOMServer *womtest.Server
	Memory    *memory.Storage
}

// NewTestApp creates an App backed by memory storage, mocked clock and ids,
// and an in-process fake roster service. Callers must Close it.
// mutate, if given, adjusts the settings before wiring.
func NewTestApp(logger *slog.Logger, mutate func(*config.Config)) (*TestApp, error) {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	mockIDs := mocks.NewMockIDs()
	server := womtest.NewServer(TestGroupID, TestAPIKey)

	settings := config.Default()
	settings.WOM.BaseURL = server.URL
	settings.WOM.GroupID = TestGroupID
	settings.WOM.APIKey = TestAPIKey
	if mutate != nil {
		mutate(settings)
	}

	app, err := newWithDependencies(store, mockClock, mockIDs, settings, logger)
	if err != nil {
		server.Close()
		return nil, err
	}

	return &TestApp{
		App:       app,
		MockClock: mockClock,
		MockIDs:   mockIDs,
		WOMServer: server,
		Memory:    store,
	}, nil
}

// Close stops the fake roster service
func (t *TestApp) Close() {
	t.WOMServer.Close()
}
