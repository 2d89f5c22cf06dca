package e2e_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/clanadmin/internal/api"
	"github.com/mcoot/clanadmin/internal/config"
	"github.com/mcoot/clanadmin/internal/factory"
	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/services/auth"
	"github.com/mcoot/clanadmin/internal/testutil"
	"github.com/mcoot/clanadmin/internal/wom/womtest"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
	tokenFile  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(t.TempDir(), "clanctl-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/clanctl")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
		tokenFile:  filepath.Join(t.TempDir(), "token"),
	}
}

func (r *cliRunner) run(args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--token-file", r.tokenFile,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	cmd.Env = append(os.Environ(), "CLANADMIN_TOKEN=")
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func (r *cliRunner) runJSON(t *testing.T, result any, args ...string) {
	t.Helper()
	out, err := r.run(args...)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), result), out)
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// testServer manages a real HTTP server over a test app
type testServer struct {
	app   *factory.TestApp
	url   string
	token string
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()

	token := auth.GenerateToken()
	hash, err := auth.HashToken(token)
	require.NoError(t, err)

	app, err := factory.NewTestApp(testutil.NopLogger(), func(c *config.Config) {
		c.Auth.StaffTokens = []auth.StaffToken{{Name: "Owner", RSN: "Zezima", Hash: hash}}
	})
	require.NoError(t, err)
	t.Cleanup(app.Close)

	ctx := context.Background()
	for _, name := range []string{"Sapphire", "Emerald", "Ruby"} {
		require.NoError(t, app.Storage.CreateRank(ctx, &model.Rank{Name: name, Type: model.RankTypeStandard}))
	}
	now := app.MockClock.Now()
	app.WOMServer.SetMembers(
		womtest.Member{ID: 1, Name: "Zezima", Role: "ruby", Exp: womtest.Int64(200_000_000)},
		womtest.Member{ID: 2, Name: "Lynx Titan", Role: "sapphire", Exp: womtest.Int64(4_600_000_000)},
	)
	app.WOMServer.SetLatestSnapshot("Zezima", &womtest.Snapshot{CreatedAt: now, XP: 200_000_000, Level: 2000})
	app.WOMServer.SetLatestSnapshot("Lynx Titan", &womtest.Snapshot{CreatedAt: now, XP: 4_600_000_000, Level: 2277})

	router := api.NewRouter(api.RouterConfig{
		Logger:        testutil.NopLogger(),
		AuthService:   app.AuthService,
		Runner:        app.Runner,
		RosterService: app.RosterService,
	})
	serverCfg := api.DefaultServerConfig()
	serverCfg.ShutdownTimeout = 5 * time.Second
	server := api.NewServer(router, serverCfg, testutil.NopLogger())

	go func() {
		if err := server.Serve(listener); err != nil {
			t.Logf("server error: %v", err)
		}
	}()
	t.Cleanup(func() {
		_ = server.Shutdown(context.Background())
	})

	serverURL := "http://" + addr
	waitForServer(t, serverURL+"/api/v1/health")

	return &testServer{app: app, url: serverURL, token: token}
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

// Response types for JSON parsing
type healthResponse struct {
	Status string `json:"status"`
}

type syncResponse struct {
	DryRun  bool           `json:"dry_run"`
	Outcome string         `json:"outcome"`
	Counts  map[string]int `json:"counts"`
	Report  string         `json:"report"`
}

type memberResponse struct {
	RSN    string `json:"rsn"`
	Rank   string `json:"rank"`
	Points int    `json:"points"`
}

type historyResponse struct {
	Entries []struct {
		PreviousRank string `json:"previous_rank"`
		NewRank      string `json:"new_rank"`
		EnactedBy    string `json:"enacted_by"`
	} `json:"entries"`
}

type tokenResponse struct {
	Token string `json:"token"`
	Hash  string `json:"hash"`
}

func TestE2E_Health(t *testing.T) {
	ts := startTestServer(t)
	cli := newCLIRunner(t, ts.url)

	var health healthResponse
	cli.runJSON(t, &health, "health")
	assert.Equal(t, "ok", health.Status)
}

func TestE2E_HashTokenSavesUsableToken(t *testing.T) {
	ts := startTestServer(t)
	cli := newCLIRunner(t, ts.url)

	var tok tokenResponse
	cli.runJSON(t, &tok, "hash-token", "--save")
	assert.Len(t, tok.Token, 32)
	assert.True(t, strings.HasPrefix(tok.Hash, "$2a$"))

	saved, err := os.ReadFile(cli.tokenFile)
	require.NoError(t, err)
	assert.Equal(t, tok.Token, string(saved))

	// The saved token is not configured on the server
	out, err := cli.run("sync")
	assert.Error(t, err)
	assert.Contains(t, out, "UNAUTHORIZED")
}

func TestE2E_SyncAndManageMembers(t *testing.T) {
	ts := startTestServer(t)
	cli := newCLIRunner(t, ts.url)
	require.NoError(t, os.WriteFile(cli.tokenFile, []byte(ts.token+"\n"), 0600))

	// Dry run first
	var dry syncResponse
	cli.runJSON(t, &dry, "sync")
	assert.True(t, dry.DryRun)
	assert.Equal(t, 2, dry.Counts["new"])

	_, err := cli.run("member", "info", "Zezima")
	assert.Error(t, err, "dry run must not add members")

	// Force without live is refused locally
	_, err = cli.run("sync", "--force")
	assert.Error(t, err)

	var live syncResponse
	cli.runJSON(t, &live, "sync", "--live")
	assert.False(t, live.DryRun)
	assert.Equal(t, "completed", live.Outcome)

	var member memberResponse
	cli.runJSON(t, &member, "member", "info", "lynx_titan")
	assert.Equal(t, "Lynx Titan", member.RSN)
	assert.Equal(t, "Sapphire", member.Rank)

	cli.runJSON(t, &struct{}{}, "rank", "set", "Lynx Titan", "Emerald")

	var history historyResponse
	cli.runJSON(t, &history, "member", "history", "Lynx Titan")
	require.Len(t, history.Entries, 2)
	assert.Equal(t, "Emerald", history.Entries[0].NewRank)
	assert.Equal(t, "Zezima", history.Entries[0].EnactedBy)

	cli.runJSON(t, &struct{}{}, "points", "add", "Lynx Titan", "25", "--reason", "skilling comp")
	cli.runJSON(t, &struct{}{}, "points", "bulk", "--", "-5", "Lynx Titan", "Zezima")

	cli.runJSON(t, &member, "member", "info", "Lynx Titan")
	assert.Equal(t, 20, member.Points)

	var board struct {
		Entries []struct {
			RSN    string `json:"rsn"`
			Points int    `json:"points"`
		} `json:"entries"`
	}
	cli.runJSON(t, &board, "points", "leaderboard")
	require.Len(t, board.Entries, 1, "negative balances are left off")
	assert.Equal(t, "Lynx Titan", board.Entries[0].RSN)

	cli.runJSON(t, &struct{}{}, "member", "exempt", "Lynx Titan", "--reason", "holiday")
	out, err := cli.run("member", "exempt", "Lynx Titan")
	assert.Error(t, err)
	assert.Contains(t, out, "ALREADY_EXEMPT")

	var bulk struct {
		Results []struct {
			RSN    string `json:"rsn"`
			Status string `json:"status"`
		} `json:"results"`
	}
	cli.runJSON(t, &bulk, "rank", "bulk", "Ruby", "Zezima", "Nobody")
	require.Len(t, bulk.Results, 2)
	assert.Equal(t, "unchanged", bulk.Results[0].Status)
	assert.Equal(t, "not_found", bulk.Results[1].Status)
}

func TestE2E_SyncFailureExitsNonZero(t *testing.T) {
	ts := startTestServer(t)
	ts.app.WOMServer.FailRoster(true)
	cli := newCLIRunner(t, ts.url)
	require.NoError(t, os.WriteFile(cli.tokenFile, []byte(ts.token), 0600))

	out, err := cli.run("sync")
	assert.Error(t, err)
	assert.Contains(t, out, "CRITICAL ERROR")
}
