package auth

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/clanadmin/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	token   string
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.token = GenerateToken()
	hash, err := bcrypt.GenerateFromPassword([]byte(s.token), bcrypt.MinCost)
	s.Require().NoError(err)

	cfg := DefaultConfig()
	cfg.StaffTokens = []StaffToken{
		{Name: "other", Hash: "$2a$04$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva"},
		{Name: "alice", RSN: "Alice", Hash: string(hash)},
	}
	s.service = New(cfg, testutil.NopLogger())
}

func (s *ServiceSuite) TestAuthenticateValidToken() {
	staff, err := s.service.Authenticate(s.token)
	s.Require().NoError(err)
	s.Equal(&Staff{Name: "alice", RSN: "Alice"}, staff)
}

func (s *ServiceSuite) TestAuthenticateIsCached() {
	_, err := s.service.Authenticate(s.token)
	s.Require().NoError(err)
	s.Equal(1, s.service.verified.ItemCount())

	staff, err := s.service.Authenticate(s.token)
	s.Require().NoError(err)
	s.Equal("alice", staff.Name)
}

func (s *ServiceSuite) TestAuthenticateWrongToken() {
	_, err := s.service.Authenticate("nope")
	s.ErrorIs(err, ErrInvalidToken)
	s.Equal(0, s.service.verified.ItemCount())
}

func (s *ServiceSuite) TestAuthenticateEmptyToken() {
	_, err := s.service.Authenticate("")
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestEnabled() {
	s.True(s.service.Enabled())
	s.False(New(DefaultConfig(), testutil.NopLogger()).Enabled())
}

func (s *ServiceSuite) TestHashTokenRoundTrips() {
	hash, err := HashToken("secret")
	s.Require().NoError(err)
	s.NoError(bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")))

	_, err = HashToken("")
	s.ErrorIs(err, ErrEmptyToken)
}

func (s *ServiceSuite) TestGenerateTokenIsRandom() {
	s.NotEqual(GenerateToken(), GenerateToken())
	s.Len(GenerateToken(), 32)
}
