package router

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/wordgroups/internal/dependencies/mocks"
	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/protocol"
	"github.com/mcoot/wordgroups/internal/services/accounts"
	"github.com/mcoot/wordgroups/internal/services/match"
	"github.com/mcoot/wordgroups/internal/services/scoring"
	"github.com/mcoot/wordgroups/internal/session"
	"github.com/mcoot/wordgroups/internal/testutil"
)

type stubEndpoint struct {
	addr net.Addr
}

func (e *stubEndpoint) Send([]byte) error    { return nil }
func (e *stubEndpoint) RemoteAddr() net.Addr { return e.addr }
func (e *stubEndpoint) Close() error         { return nil }

type fakeSubs struct {
	mu   sync.Mutex
	subs map[string]string
}

func (f *fakeSubs) Subscribe(sessionID, username string, addr *net.UDPAddr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sessionID] = fmt.Sprintf("%s@%s", username, addr)
}

func (f *fakeSubs) Unsubscribe(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, sessionID)
}

func (f *fakeSubs) Rename(sessionID, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sessionID]; ok {
		f.subs[sessionID] = username
	}
}

type RouterSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	accounts *accounts.Service
	registry *match.Registry
	subs     *fakeSubs
	router   *Router
	ctx      context.Context
	nextID   int
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := testutil.NopLogger()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	scorer := scoring.New(scoring.DefaultConfig())
	s.accounts = accounts.New(s.clock, scorer, logger, accounts.Config{BcryptCost: bcrypt.MinCost})
	s.registry = match.NewRegistry(s.clock, mocks.NewMockRandom(), s.accounts, logger, match.DefaultConfig())
	s.subs = &fakeSubs{subs: make(map[string]string)}
	s.router = New(s.accounts, s.registry, s.subs, s.clock, logger, Config{AdminPassword: "hunter2"})
	s.ctx = context.Background()
}

func (s *RouterSuite) newSession() *session.Session {
	s.nextID++
	ep := &stubEndpoint{addr: &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 40000 + s.nextID}}
	return session.New(fmt.Sprintf("sess-%d", s.nextID), ep, 0, s.clock.Now())
}

func (s *RouterSuite) send(sess *session.Session, message string) protocol.Response {
	payload := s.router.Dispatch(s.ctx, sess, message)
	if payload == nil {
		return nil
	}
	resp, err := protocol.DecodeResponse(string(payload))
	s.Require().NoError(err)
	return resp
}

func (s *RouterSuite) requireError(resp protocol.Response, code protocol.ErrorCode, status int) {
	errResp, ok := resp.(*protocol.ErrorResponse)
	s.Require().True(ok, "expected error response, got %T", resp)
	s.Equal(code, errResp.Error)
	s.Equal(status, errResp.Code)
}

func (s *RouterSuite) loggedIn(name string) *session.Session {
	s.Require().NoError(s.accounts.Register(s.ctx, name, "pw"))
	sess := s.newSession()
	resp := s.send(sess, fmt.Sprintf(`{"operation":"login","username":%q,"password":"pw"}`, name))
	s.Require().Equal(protocol.StatusOK, resp.Status())
	return sess
}

func (s *RouterSuite) startRound(id model.RoundID) *match.Match {
	return s.registry.Install(testutil.SampleRound(id), time.Minute)
}

// Dispatch tests

func (s *RouterSuite) TestMalformedPayload() {
	s.requireError(s.send(s.newSession(), `{"operation":`), protocol.CodeBadRequest, 400)
}

func (s *RouterSuite) TestUnknownOperation() {
	s.requireError(s.send(s.newSession(), `{"operation":"fly"}`), protocol.CodeBadRequest, 400)
}

func (s *RouterSuite) TestAuthenticatedOnlyOperations() {
	sess := s.newSession()
	for _, msg := range []string{
		`{"operation":"logout"}`,
		`{"operation":"submitProposal","words":["CANE","GATTO","LUPO","ORSO"]}`,
		`{"operation":"requestGameInfo"}`,
		`{"operation":"requestPlayerStats"}`,
		`{"operation":"requestLeaderboard"}`,
		`{"operation":"oracle","password":"hunter2"}`,
	} {
		s.requireError(s.send(sess, msg), protocol.CodeUnauthenticated, 401)
	}
}

func (s *RouterSuite) TestAnonymousOnlyOperations() {
	sess := s.loggedIn("alice")
	s.requireError(s.send(sess, `{"operation":"register","name":"bob","password":"pw"}`), protocol.CodeUnauthenticated, 401)
	s.requireError(s.send(sess, `{"operation":"login","username":"alice","password":"pw"}`), protocol.CodeUnauthenticated, 401)
}

// Register and login tests

func (s *RouterSuite) TestRegisterThenDuplicate() {
	sess := s.newSession()
	resp := s.send(sess, `{"operation":"register","name":"alice","password":"pw"}`)
	s.Equal(protocol.TypeGeneric, resp.ResponseType())

	resp = s.send(sess, `{"operation":"register","name":"alice","password":"pw"}`)
	s.requireError(resp, protocol.CodeConflict, 409)
}

func (s *RouterSuite) TestRegisterRequiresFields() {
	s.requireError(s.send(s.newSession(), `{"operation":"register","name":"","password":"pw"}`), protocol.CodeBadRequest, 400)
}

func (s *RouterSuite) TestLoginWrongPassword() {
	s.Require().NoError(s.accounts.Register(s.ctx, "alice", "pw"))
	resp := s.send(s.newSession(), `{"operation":"login","username":"alice","password":"nope"}`)
	s.requireError(resp, protocol.CodeUnauthenticated, 401)
}

func (s *RouterSuite) TestLoginWithoutRoundReturnsGeneric() {
	s.Require().NoError(s.accounts.Register(s.ctx, "alice", "pw"))
	resp := s.send(s.newSession(), `{"operation":"login","username":"alice","password":"pw"}`)
	s.Equal(protocol.TypeGeneric, resp.ResponseType())
}

func (s *RouterSuite) TestLoginDuringRoundReturnsGameInfo() {
	m := s.startRound(1)
	s.Require().NoError(s.accounts.Register(s.ctx, "alice", "pw"))

	resp := s.send(s.newSession(), `{"operation":"login","username":"alice","password":"pw","udpPort":7000}`)

	info, ok := resp.(*protocol.GameInfoResponse)
	s.Require().True(ok)
	s.Equal(model.RoundID(1), info.GameID)
	s.Len(info.Grid, 16)
	s.Equal(int64(60000), info.TimeLeftMs)
	s.Equal(4, info.MaxMistakes)
	s.Empty(info.Solution)

	_, joined := m.Progress("alice")
	s.True(joined)
	s.Len(s.subs.subs, 1)
}

func (s *RouterSuite) TestLoginRejectedWhileOnlineElsewhere() {
	s.loggedIn("alice")
	resp := s.send(s.newSession(), `{"operation":"login","username":"alice","password":"pw"}`)
	s.requireError(resp, protocol.CodeConflict, 409)
}

func (s *RouterSuite) TestLogoutHasNoResponseAndFreesLogin() {
	sess := s.loggedIn("alice")
	s.Nil(s.send(sess, `{"operation":"logout"}`))
	s.False(sess.Authenticated())
	s.False(s.accounts.IsOnline("alice"))

	other := s.newSession()
	resp := s.send(other, `{"operation":"login","username":"alice","password":"pw"}`)
	s.Equal(protocol.StatusOK, resp.Status())
}

func (s *RouterSuite) TestDisconnectReleasesLogin() {
	sess := s.loggedIn("alice")
	s.router.Disconnect(s.ctx, sess)
	s.False(s.accounts.IsOnline("alice"))
	s.Empty(s.subs.subs)
}

// Proposal tests

func (s *RouterSuite) TestProposalExample() {
	s.startRound(1)
	sess := s.loggedIn("alice")

	resp := s.send(sess, `{"operation":"submitProposal","words":["CANE","GATTO","LUPO","ORSO"]}`)

	prop, ok := resp.(*protocol.ProposalResponse)
	s.Require().True(ok)
	s.True(prop.Correct)
	s.Equal("ANIMALS", prop.Theme)
	s.Equal(1, prop.Score)
	s.Equal(0, prop.Mistakes)
	s.Equal(4, prop.RemainingMistakes)
	s.Require().Len(prop.Guessed, 1)

	summary, ok := sess.Summary()
	s.Require().True(ok)
	s.Equal(1, summary.Score)
}

func (s *RouterSuite) TestProposalErrors() {
	s.startRound(1)
	sess := s.loggedIn("alice")

	s.requireError(s.send(sess, `{"operation":"submitProposal","words":["CANE","GATTO","LUPO"]}`), protocol.CodeBadRequest, 400)
	s.requireError(s.send(sess, `{"operation":"submitProposal","words":["CANE","GATTO","LUPO","PIZZA"]}`), protocol.CodeInvalidWords, 422)

	s.send(sess, `{"operation":"submitProposal","words":["CANE","GATTO","LUPO","ORSO"]}`)
	s.requireError(s.send(sess, `{"operation":"submitProposal","words":["ORSO","LUPO","GATTO","CANE"]}`), protocol.CodeDuplicateGuess, 422)
}

func (s *RouterSuite) TestIncorrectProposalIsNotAnError() {
	s.startRound(1)
	sess := s.loggedIn("alice")

	resp := s.send(sess, `{"operation":"submitProposal","words":["CANE","ROSSO","MELA","ROMA"]}`)
	prop, ok := resp.(*protocol.ProposalResponse)
	s.Require().True(ok)
	s.False(prop.Correct)
	s.Equal(1, prop.Mistakes)
	s.Equal(3, prop.RemainingMistakes)
}

func (s *RouterSuite) TestLostPlayerGetsConflict() {
	s.startRound(1)
	sess := s.loggedIn("alice")
	for i := 0; i < 4; i++ {
		s.send(sess, `{"operation":"submitProposal","words":["CANE","ROSSO","MELA","ROMA"]}`)
	}
	s.requireError(s.send(sess, `{"operation":"submitProposal","words":["CANE","ROSSO","MELA","ROMA"]}`), protocol.CodeConflict, 409)
	s.requireError(s.send(sess, `{"operation":"submitProposal","words":["X","Y","Z","W"]}`), protocol.CodeConflict, 409)

	stats, err := s.accounts.Stats("alice")
	s.Require().NoError(err)
	s.Equal(1, stats.Played)
}

func (s *RouterSuite) TestProposalWithoutRoundIsTimeout() {
	sess := s.loggedIn("alice")
	s.requireError(s.send(sess, `{"operation":"submitProposal","words":["CANE","GATTO","LUPO","ORSO"]}`), protocol.CodeTimeout, 408)
}

func (s *RouterSuite) TestProposalAfterExpiryIsTimeout() {
	s.startRound(1)
	sess := s.loggedIn("alice")
	s.clock.Advance(2 * time.Minute)
	s.requireError(s.send(sess, `{"operation":"submitProposal","words":["CANE","GATTO","LUPO","ORSO"]}`), protocol.CodeTimeout, 408)
}

func (s *RouterSuite) TestWinViaAutoCompletion() {
	s.startRound(1)
	sess := s.loggedIn("alice")
	s.send(sess, `{"operation":"submitProposal","words":["CANE","GATTO","LUPO","ORSO"]}`)
	s.send(sess, `{"operation":"submitProposal","words":["ROSSO","VERDE","BLU","GIALLO"]}`)
	resp := s.send(sess, `{"operation":"submitProposal","words":["MELA","PERA","UVA","FICO"]}`)

	prop := resp.(*protocol.ProposalResponse)
	s.Equal("CITIES", prop.AutoCompleted)
	s.Equal(4, prop.Score)
	s.Equal(string(model.OutcomeWon), prop.Outcome)
	s.True(prop.Finished)

	stats := s.send(sess, `{"operation":"requestPlayerStats"}`).(*protocol.PlayerStatsResponse)
	s.Equal(1, stats.Won)
	s.Equal(1, stats.CurrentStreak)
	s.Equal(24, stats.RankScore)
	s.InDelta(100.0, stats.WinRate, 0.001)
}

// Progress recovery

func (s *RouterSuite) TestProgressRecoveredAfterRelogin() {
	s.startRound(1)
	sess := s.loggedIn("alice")
	s.send(sess, `{"operation":"submitProposal","words":["CANE","GATTO","LUPO","ORSO"]}`)
	wrong := s.send(sess, `{"operation":"submitProposal","words":["ROSSO","MELA","ROMA","PERA"]}`)
	s.Require().IsType(&protocol.ProposalResponse{}, wrong)
	s.send(sess, `{"operation":"logout"}`)

	resp := s.send(sess, `{"operation":"login","username":"alice","password":"pw"}`)
	info := resp.(*protocol.GameInfoResponse)
	s.Equal(1, info.Score)
	s.Equal(1, info.Mistakes)
	s.False(info.Finished)
	s.Len(info.Grid, 12)
}

func (s *RouterSuite) TestGuessInFlightWhileReconnecting() {
	s.Require().NoError(s.accounts.Register(s.ctx, "alice", "pw"))
	login := `{"operation":"login","username":"alice","password":"pw"}`
	guess := `{"operation":"submitProposal","words":["ROSSO","MELA","ROMA","PERA"]}`

	for iter := 0; iter < 20; iter++ {
		m := s.startRound(1)
		first := s.newSession()
		s.Require().Equal(protocol.StatusOK, s.send(first, login).Status())

		var wg sync.WaitGroup
		payloads := make(chan []byte, 2)
		second := s.newSession()
		wg.Add(2)
		go func() {
			defer wg.Done()
			payloads <- s.router.Dispatch(s.ctx, first, guess)
		}()
		go func() {
			defer wg.Done()
			s.router.Disconnect(s.ctx, first)
			if s.router.Dispatch(s.ctx, second, login) != nil {
				payloads <- s.router.Dispatch(s.ctx, second, guess)
			}
		}()
		wg.Wait()
		close(payloads)

		scored := 0
		for payload := range payloads {
			resp, err := protocol.DecodeResponse(string(payload))
			s.Require().NoError(err)
			if _, ok := resp.(*protocol.ProposalResponse); ok {
				scored++
			}
		}

		p, ok := m.Progress("alice")
		s.Require().True(ok)
		s.Equal(scored, p.Errors, "every scored guess is counted exactly once")
		s.Require().GreaterOrEqual(scored, 1)
		s.router.Disconnect(s.ctx, second)
	}
}

// Game info and stats

func (s *RouterSuite) TestArchivedGameInfoIsFrozen() {
	s.startRound(1)
	sess := s.loggedIn("alice")
	s.send(sess, `{"operation":"submitProposal","words":["CANE","GATTO","LUPO","ORSO"]}`)

	s.startRound(2)
	s.send(sess, `{"operation":"submitProposal","words":["ROSSO","VERDE","BLU","GIALLO"]}`)

	resp := s.send(sess, `{"operation":"requestGameInfo","gameId":1}`)
	info := resp.(*protocol.GameInfoResponse)
	s.Equal(model.RoundID(1), info.GameID)
	s.Equal(string(model.MatchStateFinished), info.State)
	s.Equal(1, info.Score)
	s.Equal(string(model.OutcomeTimeout), info.Outcome)
	s.Len(info.Solution, 4)

	current := s.send(sess, `{"operation":"requestGameInfo"}`).(*protocol.GameInfoResponse)
	s.Equal(model.RoundID(2), current.GameID)
	s.Equal(1, current.Score)
}

func (s *RouterSuite) TestGameInfoUnknownID() {
	s.startRound(1)
	sess := s.loggedIn("alice")
	s.requireError(s.send(sess, `{"operation":"requestGameInfo","gameId":42}`), protocol.CodeNotFound, 404)
}

func (s *RouterSuite) TestGameStats() {
	s.startRound(1)
	alice := s.loggedIn("alice")
	bob := s.loggedIn("bob")
	s.send(alice, `{"operation":"submitProposal","words":["CANE","GATTO","LUPO","ORSO"]}`)
	s.send(bob, `{"operation":"submitProposal","words":["ROSSO","MELA","ROMA","PERA"]}`)

	stats := s.send(alice, `{"operation":"requestGameStats"}`).(*protocol.GameStatsResponse)
	s.Equal(2, stats.Participants)
	s.Equal(0, stats.Finished)
	s.InDelta(0.5, stats.AverageScore, 0.001)
	s.Equal(int64(60000), stats.TimeLeftMs)
}

// Credentials

func (s *RouterSuite) TestUpdateCredentialsRename() {
	m := s.startRound(1)
	sess := s.loggedIn("alice")
	s.send(sess, `{"operation":"submitProposal","words":["CANE","GATTO","LUPO","ORSO"]}`)

	resp := s.send(sess, `{"operation":"updateCredentials","oldName":"alice","newName":"alicia","oldPassword":"pw","newPassword":""}`)
	s.Equal(protocol.TypeGeneric, resp.ResponseType())

	name, _ := sess.Username()
	s.Equal("alicia", name)
	p, ok := m.Progress("alicia")
	s.Require().True(ok)
	s.Equal(1, p.Score())
	s.True(s.accounts.IsOnline("alicia"))
}

func (s *RouterSuite) TestUpdateCredentialsForbidden() {
	sess := s.loggedIn("alice")
	s.loggedIn("bob")

	s.requireError(s.send(sess, `{"operation":"updateCredentials","oldName":"bob","newName":"x","oldPassword":"pw"}`), protocol.CodeForbidden, 403)
	s.requireError(s.send(sess, `{"operation":"updateCredentials","oldName":"alice","newName":"x","oldPassword":"bad"}`), protocol.CodeForbidden, 403)
	s.requireError(s.send(sess, `{"operation":"updateCredentials","oldName":"alice","newName":"bob","oldPassword":"pw"}`), protocol.CodeConflict, 409)
	s.requireError(s.send(sess, `{"operation":"updateCredentials","oldName":"alice","oldPassword":"pw"}`), protocol.CodeBadRequest, 400)
}

// Leaderboard

func (s *RouterSuite) TestLeaderboard() {
	alice := s.loggedIn("alice")
	s.loggedIn("bob")
	s.accounts.RecordOutcome("bob", model.PlayerProgress{GuessedThemes: []string{"A", "B", "C", "D"}, Finished: true, Outcome: model.OutcomeWon})

	board := s.send(alice, `{"operation":"requestLeaderboard","topN":1}`).(*protocol.LeaderboardResponse)
	s.Require().Len(board.Rows, 1)
	s.Equal("bob", board.Rows[0].Username)
	s.Equal(24, board.Rows[0].Score)

	single := s.send(alice, `{"operation":"requestLeaderboard","playerName":"alice"}`).(*protocol.LeaderboardResponse)
	s.Require().Len(single.Rows, 1)
	s.Equal(2, single.Rows[0].Position)

	s.requireError(s.send(alice, `{"operation":"requestLeaderboard","topN":1,"playerName":"alice"}`), protocol.CodeBadRequest, 400)
	s.requireError(s.send(alice, `{"operation":"requestLeaderboard","playerName":"zed"}`), protocol.CodeNotFound, 404)
}

// Admin

func (s *RouterSuite) TestOracleAndGod() {
	s.startRound(1)
	sess := s.loggedIn("alice")
	s.send(sess, `{"operation":"submitProposal","words":["CANE","GATTO","LUPO","ORSO"]}`)

	s.requireError(s.send(sess, `{"operation":"oracle","password":"guess"}`), protocol.CodeForbidden, 403)

	oracle := s.send(sess, `{"operation":"oracle","password":"hunter2"}`).(*protocol.AdminInfoResponse)
	s.Len(oracle.Solution, 4)
	s.Empty(oracle.Players)

	god := s.send(sess, `{"operation":"god","password":"hunter2"}`).(*protocol.AdminInfoResponse)
	s.Require().Contains(god.Players, "alice")
	s.Equal([]string{"ANIMALS"}, god.Players["alice"].GuessedThemes)
}

func (s *RouterSuite) TestAdminDisabledWithoutPassword() {
	s.router = New(s.accounts, s.registry, nil, s.clock, testutil.NopLogger(), Config{})
	s.startRound(1)
	sess := s.loggedIn("alice")
	s.requireError(s.send(sess, `{"operation":"oracle","password":""}`), protocol.CodeForbidden, 403)
}

// Panic recovery

type unsupportedRequest struct{}

func (unsupportedRequest) Operation() protocol.Operation { return "panic" }

func (s *RouterSuite) TestErrorMappingDefaultsToInternal() {
	resp := toErrorResponse(fmt.Errorf("disk on fire"))
	s.Equal(protocol.CodeInternal, resp.Error)
	s.Equal(500, resp.Code)
	s.Equal("internal server error", resp.Message)
}

func (s *RouterSuite) TestUnsupportedRequestType() {
	sess := s.loggedIn("alice")
	_, err := s.router.Handle(s.ctx, sess, unsupportedRequest{})
	s.ErrorIs(err, model.ErrBadRequest)
}

func (s *RouterSuite) TestHandlerPanicBecomesInternal() {
	s.router = New(nil, s.registry, nil, s.clock, testutil.NopLogger(), Config{})
	sess := s.newSession()

	// A nil accounts service makes register panic inside the handler
	resp := s.send(sess, `{"operation":"register","name":"alice","password":"pw"}`)
	s.requireError(resp, protocol.CodeInternal, 500)
}
