package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/clanadmin/internal/dependencies/mocks"
	"github.com/mcoot/clanadmin/internal/testutil"
)

func TestChunkKeepsShortTextWhole(t *testing.T) {
	assert.Equal(t, []string{"a\nb\nc"}, Chunk("a\nb\nc", 100))
}

func TestChunkBreaksBetweenLines(t *testing.T) {
	chunks := Chunk("aaaa\nbbbb\ncccc", 9)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, chunks)
}

func TestChunkSplitsLongLines(t *testing.T) {
	chunks := Chunk(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, chunks)
}

func TestChunkDoesNotSplitRunes(t *testing.T) {
	for _, chunk := range Chunk(strings.Repeat("é", 10), 5) {
		assert.True(t, len(chunk) <= 5)
		assert.True(t, strings.Count(chunk, "é")*2 == len(chunk), "chunk %q splits a rune", chunk)
	}
}

func TestChunkNeverExceedsLimit(t *testing.T) {
	var lines []string
	for i := 0; i < 500; i++ {
		lines = append(lines, strings.Repeat("line ", i%40))
	}
	text := strings.Join(lines, "\n")
	for _, chunk := range Chunk(text, 120) {
		assert.LessOrEqual(t, len(chunk), 120)
	}
}

type DiscordSuite struct {
	suite.Suite
	server   *httptest.Server
	clock    *mocks.MockClock
	notifier *Discord

	mu        sync.Mutex
	messages  []webhookMessage
	limitNext bool
}

func TestDiscordSuite(t *testing.T) {
	suite.Run(t, new(DiscordSuite))
}

func (s *DiscordSuite) SetupTest() {
	s.messages = nil
	s.limitNext = false
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.limitNext {
			s.limitNext = false
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"retry_after": 1.5}`))
			return
		}
		var msg webhookMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.messages = append(s.messages, msg)
		w.WriteHeader(http.StatusNoContent)
	}))
	s.clock = mocks.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	cfg := DefaultConfig()
	cfg.WebhookURL = s.server.URL
	s.notifier = NewDiscord(cfg, s.clock, testutil.NopLogger())
}

func (s *DiscordSuite) TearDownTest() {
	s.server.Close()
}

func (s *DiscordSuite) TestPostShortReport() {
	err := s.notifier.Post(context.Background(), "Clan Sync Report", "line one\nline two")
	s.Require().NoError(err)

	s.Require().Len(s.messages, 1)
	s.Equal("**Clan Sync Report**\n```\nline one\nline two\n```", s.messages[0].Content)
	s.Equal("Clan Admin", s.messages[0].Username)
}

func (s *DiscordSuite) TestPostLongReportIsSplitUnderLimit() {
	line := strings.Repeat("z", 99)
	var lines []string
	for i := 0; i < 60; i++ {
		lines = append(lines, line)
	}

	err := s.notifier.Post(context.Background(), "Report", strings.Join(lines, "\n"))
	s.Require().NoError(err)

	s.Require().Greater(len(s.messages), 1)
	total := 0
	for i, msg := range s.messages {
		s.LessOrEqual(len(msg.Content), MessageLimit)
		s.True(strings.HasSuffix(msg.Content, "\n```"))
		if i > 0 {
			s.True(strings.HasPrefix(msg.Content, "```\n"))
		}
		total += strings.Count(msg.Content, line)
	}
	s.Equal(60, total)
}

func (s *DiscordSuite) TestPostWaitsOutRateLimit() {
	s.limitNext = true

	err := s.notifier.Post(context.Background(), "", "hello")
	s.Require().NoError(err)

	s.Require().Len(s.messages, 1)
	s.Equal([]time.Duration{1500 * time.Millisecond}, s.clock.Sleeps)
}

func TestPostFailsOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.WebhookURL = server.URL
	notifier := NewDiscord(cfg, mocks.NewMockClock(time.Now()), testutil.NopLogger())

	err := notifier.Post(context.Background(), "t", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook returned 500")
}
