// Package wom is a client for the Wise Old Man group and player API.
package wom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mcoot/clanadmin/internal/dependencies/clock"
	"github.com/mcoot/clanadmin/internal/model"
)

var tracer = otel.Tracer("github.com/mcoot/clanadmin/internal/wom")

// snapshotPageSize is the largest page the snapshots endpoint returns
const snapshotPageSize = 50

// Client is an HTTP client for the external roster service
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *slog.Logger
}

// NewClient creates a client whose snapshot requests share one rate limiter
func NewClient(cfg Config, clk clock.Clock, logger *slog.Logger) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: NewRateLimiter(clk, logger, cfg.RequestsPerWindow, cfg.Window),
		logger:  logger,
	}
}

// FetchRoster returns the group's current memberships keyed by normalized name,
// along with the group payload exactly as the service sent it
func (c *Client) FetchRoster(ctx context.Context) (model.Roster, json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "FetchRoster")
	defer span.End()

	var raw json.RawMessage
	if err := c.get(ctx, "/groups/"+url.PathEscape(c.cfg.GroupID), nil, &raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	var group groupDetails
	if err := json.Unmarshal(raw, &group); err != nil {
		err = fmt.Errorf("%w: failed to decode group: %v", model.ErrExternalUnavailable, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	roster := make(model.Roster, len(group.Memberships))
	for _, m := range group.Memberships {
		if m.Player == nil {
			continue
		}
		name := m.Player.name()
		roster[model.Normalize(name)] = model.RosterEntry{
			DisplayName: name,
			ExternalID:  m.Player.ID,
			RankLabel:   m.Role,
			CachedXP:    m.Player.Exp,
		}
	}

	span.SetAttributes(attribute.Int("roster.size", len(roster)))
	c.logger.Info("fetched roster", slog.Int("members", len(roster)))
	return roster, raw, nil
}

// FetchPlayerSnapshot returns the player's latest snapshot, or nil if they have none
func (c *Client) FetchPlayerSnapshot(ctx context.Context, displayName string) (*model.PlayerSnapshot, error) {
	ctx, span := tracer.Start(ctx, "FetchPlayerSnapshot")
	defer span.End()
	span.SetAttributes(attribute.String("player", displayName))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var details playerDetails
	if err := c.get(ctx, "/players/"+url.PathEscape(displayName), nil, &details); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if len(details.LatestSnapshot) == 0 || string(details.LatestSnapshot) == "null" {
		return nil, nil
	}
	return decodeSnapshot(details.LatestSnapshot)
}

// FetchNameChanges returns the group's approved renames, oldest first
func (c *Client) FetchNameChanges(ctx context.Context) ([]model.NameChange, error) {
	ctx, span := tracer.Start(ctx, "FetchNameChanges")
	defer span.End()

	var changes []nameChange
	if err := c.get(ctx, "/groups/"+url.PathEscape(c.cfg.GroupID)+"/name-changes", nil, &changes); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// The endpoint lists newest first; replay order must follow occurrence
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].CreatedAt.Before(changes[j].CreatedAt)
	})

	result := make([]model.NameChange, 0, len(changes))
	for _, ch := range changes {
		if ch.Status != "" && ch.Status != "approved" {
			continue
		}
		result = append(result, model.NameChange{OldName: ch.OldName, NewName: ch.NewName})
	}

	span.SetAttributes(attribute.Int("name_changes", len(result)))
	return result, nil
}

// FetchSnapshots pages through the player's snapshots between start and end.
// Every page counts against the rate limit. Results are newest first.
func (c *Client) FetchSnapshots(ctx context.Context, displayName string, start, end time.Time) ([]model.PlayerSnapshot, error) {
	ctx, span := tracer.Start(ctx, "FetchSnapshots")
	defer span.End()
	span.SetAttributes(attribute.String("player", displayName))

	path := "/players/" + url.PathEscape(displayName) + "/snapshots"
	var result []model.PlayerSnapshot
	for offset := 0; ; offset += snapshotPageSize {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		query := url.Values{}
		query.Set("startDate", start.UTC().Format(time.RFC3339))
		query.Set("endDate", end.UTC().Format(time.RFC3339))
		query.Set("limit", strconv.Itoa(snapshotPageSize))
		query.Set("offset", strconv.Itoa(offset))

		var page []json.RawMessage
		if err := c.get(ctx, path, query, &page); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		for _, raw := range page {
			snap, err := decodeSnapshot(raw)
			if err != nil {
				return nil, err
			}
			result = append(result, *snap)
		}

		if len(page) < snapshotPageSize {
			break
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	span.SetAttributes(attribute.Int("snapshots", len(result)))
	return result, nil
}

func decodeSnapshot(raw json.RawMessage) (*model.PlayerSnapshot, error) {
	var s snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &model.PlayerSnapshot{
		ExternalID: s.PlayerID,
		CreatedAt:  s.CreatedAt,
		TotalXP:    s.Data.Skills.Overall.Experience,
		TotalLevel: s.Data.Skills.Overall.Level,
		EHP:        s.Data.Computed.EHP.Value,
		EHB:        s.Data.Computed.EHB.Value,
		Raw:        append(json.RawMessage(nil), raw...),
	}, nil
}

// get performs a GET request and decodes the JSON response into result
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: GET %s: %v", model.ErrExternalUnavailable, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", model.ErrExternalUnavailable, err)
	}

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/players/") {
		return fmt.Errorf("%w: %s", model.ErrPlayerNotTracked, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: GET %s returned %d", model.ErrExternalUnavailable, path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", model.ErrExternalUnavailable, err)
	}
	return nil
}
