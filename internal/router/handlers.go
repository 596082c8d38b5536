package router

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/protocol"
	"github.com/mcoot/wordgroups/internal/services/match"
	"github.com/mcoot/wordgroups/internal/session"
)

func (r *Router) handleRegister(ctx context.Context, req *protocol.RegisterRequest) (protocol.Response, error) {
	if err := r.accounts.Register(ctx, req.Name, req.Password); err != nil {
		return nil, err
	}
	return protocol.NewGeneric(fmt.Sprintf("user %s registered", req.Name)), nil
}

func (r *Router) handleLogin(sess *session.Session, req *protocol.LoginRequest) (protocol.Response, error) {
	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", model.ErrBadRequest)
	}
	if req.UDPPort < 0 || req.UDPPort > 65535 {
		return nil, fmt.Errorf("%w: udpPort out of range", model.ErrBadRequest)
	}
	if err := r.accounts.Authenticate(req.Username, req.Password); err != nil {
		return nil, err
	}
	if err := r.accounts.MarkOnline(req.Username, sess.ID()); err != nil {
		return nil, err
	}

	var udpAddr *net.UDPAddr
	if ip := sess.RemoteIP(); req.UDPPort > 0 && ip != nil {
		udpAddr = &net.UDPAddr{IP: ip, Port: req.UDPPort}
	}
	if err := sess.Login(req.Username, udpAddr); err != nil {
		r.accounts.MarkOffline(req.Username, sess.ID())
		return nil, err
	}
	if udpAddr != nil && r.subs != nil {
		r.subs.Subscribe(sess.ID(), req.Username, udpAddr)
	}

	r.logger.Info("player logged in",
		slog.String("session_id", sess.ID()),
		slog.String("username", req.Username),
		slog.Bool("notifications", udpAddr != nil),
	)

	m, err := r.registry.Live()
	if err != nil {
		return protocol.NewGeneric(fmt.Sprintf("welcome %s, no round in progress", req.Username)), nil
	}
	return r.liveInfo(sess, req.Username, m, fmt.Sprintf("welcome %s", req.Username)), nil
}

func (r *Router) handleUpdateCredentials(sess *session.Session, req *protocol.UpdateCredentialsRequest) (protocol.Response, error) {
	username, err := playerName(sess)
	if err != nil {
		return nil, err
	}
	if req.OldName != username {
		return nil, fmt.Errorf("%w: can only update your own credentials", model.ErrForbidden)
	}

	newName, err := r.accounts.UpdateCredentials(username, req.OldPassword, req.NewName, req.NewPassword)
	if err != nil {
		return nil, err
	}

	if newName != username {
		r.registry.RenamePlayer(username, newName)
		sess.Rename(newName)
		if r.subs != nil {
			r.subs.Rename(sess.ID(), newName)
		}
	}
	return protocol.NewGeneric(fmt.Sprintf("credentials updated for %s", newName)), nil
}

func (r *Router) handleSubmitProposal(sess *session.Session, req *protocol.SubmitProposalRequest) (protocol.Response, error) {
	username, err := playerName(sess)
	if err != nil {
		return nil, err
	}
	m, err := r.registry.Live()
	if err != nil {
		return nil, err
	}

	res, err := m.Submit(username, req.Words, r.clock.Now())
	if err != nil {
		return nil, err
	}
	r.remember(sess, m, res.Progress)

	_, guessed := match.Board(m.Definition(), m.Grid(), res.Progress)
	msg := "incorrect guess"
	switch {
	case res.Progress.Outcome == model.OutcomeWon:
		msg = "all groups found, you won"
	case res.Progress.Outcome == model.OutcomeLost:
		msg = "no mistakes left, you lost"
	case res.Correct:
		msg = fmt.Sprintf("correct, %s found", res.Theme)
	}

	return &protocol.ProposalResponse{
		Header:            protocol.OK(msg),
		Correct:           res.Correct,
		Theme:             res.Theme,
		AutoCompleted:     res.AutoCompleted,
		Score:             res.Progress.Score(),
		Mistakes:          res.Progress.Errors,
		RemainingMistakes: max(m.MaxErrors()-res.Progress.Errors, 0),
		Finished:          res.Progress.Finished,
		Outcome:           string(res.Progress.Outcome),
		Guessed:           guessed,
	}, nil
}

func (r *Router) handleGameInfo(sess *session.Session, req *protocol.GameInfoRequest) (protocol.Response, error) {
	username, err := playerName(sess)
	if err != nil {
		return nil, err
	}
	m, rec, err := r.resolve(req.GameID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return r.liveInfo(sess, username, m, "current game"), nil
	}

	p, ok := rec.Players[username]
	if !ok {
		p = model.NewPlayerProgress()
	}
	remaining, guessed := match.Board(rec.Round, rec.Grid, p)
	return &protocol.GameInfoResponse{
		Header:      protocol.OK(fmt.Sprintf("archived game %d", rec.ID())),
		GameID:      rec.ID(),
		Run:         rec.Run,
		State:       string(rec.State),
		Grid:        remaining,
		Guessed:     guessed,
		Mistakes:    p.Errors,
		MaxMistakes: r.registry.MaxErrors(),
		Score:       p.Score(),
		Finished:    p.Finished,
		Outcome:     string(p.Outcome),
		Solution:    rec.Round.Groups,
	}, nil
}

// liveInfo builds the player's view of a current match, creating their progress if needed
func (r *Router) liveInfo(sess *session.Session, username string, m *match.Match, message string) *protocol.GameInfoResponse {
	var p model.PlayerProgress
	if m.State() == model.MatchStateRunning {
		p = m.Join(username)
	} else if existing, ok := m.Progress(username); ok {
		p = existing
	} else {
		p = model.NewPlayerProgress()
	}
	r.remember(sess, m, p)

	remaining, guessed := match.Board(m.Definition(), m.Grid(), p)
	info := &protocol.GameInfoResponse{
		Header:      protocol.OK(message),
		GameID:      m.ID(),
		Run:         m.Run(),
		State:       string(m.State()),
		Grid:        remaining,
		Guessed:     guessed,
		TimeLeftMs:  m.TimeLeft(r.clock.Now()).Milliseconds(),
		Mistakes:    p.Errors,
		MaxMistakes: m.MaxErrors(),
		Score:       p.Score(),
		Finished:    p.Finished,
		Outcome:     string(p.Outcome),
	}
	if m.State() == model.MatchStateFinished {
		info.Solution = m.Definition().Groups
	}
	return info
}

func (r *Router) handleGameStats(req *protocol.GameStatsRequest) (protocol.Response, error) {
	m, rec, err := r.resolve(req.GameID)
	if err != nil {
		return nil, err
	}

	resp := &protocol.GameStatsResponse{}
	var players map[string]model.PlayerProgress
	if m != nil {
		players = m.Players()
		resp.GameID = m.ID()
		resp.State = string(m.State())
		resp.TimeLeftMs = m.TimeLeft(r.clock.Now()).Milliseconds()
	} else {
		players = rec.Players
		resp.GameID = rec.ID()
		resp.State = string(rec.State)
	}

	sum := match.Summarize(players)
	resp.Header = protocol.OK(fmt.Sprintf("stats for game %d", resp.GameID))
	resp.Participants = sum.Participants
	resp.Finished = sum.Finished
	resp.Won = sum.Won
	resp.Lost = sum.Lost
	resp.TimedOut = sum.TimedOut
	resp.AverageScore = sum.AverageScore
	return resp, nil
}

func (r *Router) handlePlayerStats(sess *session.Session) (protocol.Response, error) {
	username, err := playerName(sess)
	if err != nil {
		return nil, err
	}
	stats, err := r.accounts.Stats(username)
	if err != nil {
		return nil, err
	}
	return &protocol.PlayerStatsResponse{
		Header:           protocol.OK(fmt.Sprintf("stats for %s", username)),
		Username:         username,
		Played:           stats.Played,
		Won:              stats.Won,
		WinRate:          stats.WinRate(),
		CurrentStreak:    stats.CurrentStreak,
		MaxStreak:        stats.MaxStreak,
		MistakeHistogram: stats.MistakeHistogram,
		RankScore:        stats.RankScore,
	}, nil
}

func (r *Router) handleLeaderboard(req *protocol.LeaderboardRequest) (protocol.Response, error) {
	if req.TopN != nil && req.PlayerName != "" {
		return nil, fmt.Errorf("%w: ask for topN or playerName, not both", model.ErrBadRequest)
	}

	var rows []protocol.LeaderboardRow
	if req.PlayerName != "" {
		st, err := r.accounts.StandingOf(req.PlayerName)
		if err != nil {
			return nil, err
		}
		rows = append(rows, protocol.LeaderboardRow{Position: st.Position, Username: st.Username, Score: st.Score})
	} else {
		n := 0
		if req.TopN != nil {
			if *req.TopN <= 0 {
				return nil, fmt.Errorf("%w: topN must be positive", model.ErrBadRequest)
			}
			n = *req.TopN
		}
		for _, st := range r.accounts.Leaderboard(n) {
			rows = append(rows, protocol.LeaderboardRow{Position: st.Position, Username: st.Username, Score: st.Score})
		}
	}

	return &protocol.LeaderboardResponse{
		Header: protocol.OK("leaderboard"),
		Rows:   rows,
	}, nil
}

func (r *Router) handleAdmin(password string, withPlayers bool) (protocol.Response, error) {
	if err := r.checkAdmin(password); err != nil {
		return nil, err
	}
	m, ok := r.registry.Current()
	if !ok {
		return nil, fmt.Errorf("%w: no round has been played yet", model.ErrRoundNotFound)
	}

	resp := &protocol.AdminInfoResponse{
		Header:   protocol.OK(fmt.Sprintf("solution of game %d", m.ID())),
		GameID:   m.ID(),
		Run:      m.Run(),
		Solution: m.Definition().Groups,
	}
	if withPlayers {
		resp.Players = make(map[string]protocol.PlayerView)
		for name, p := range m.Players() {
			resp.Players[name] = protocol.PlayerView{
				GuessedThemes: p.GuessedThemes,
				Mistakes:      p.Errors,
				Finished:      p.Finished,
				Outcome:       string(p.Outcome),
			}
		}
	}
	return resp, nil
}

// resolve finds the requested match: nil id means the current one
func (r *Router) resolve(id *model.RoundID) (*match.Match, *model.MatchRecord, error) {
	if id == nil {
		m, ok := r.registry.Current()
		if !ok {
			return nil, nil, model.ErrNoActiveRound
		}
		return m, nil, nil
	}
	return r.registry.Lookup(*id)
}

func (r *Router) remember(sess *session.Session, m *match.Match, p model.PlayerProgress) {
	sess.Remember(session.ProgressSummary{
		RoundID:  m.ID(),
		Run:      m.Run(),
		Score:    p.Score(),
		Errors:   p.Errors,
		Finished: p.Finished,
	})
}

// playerName reads the login once, so a handler keeps acting for the same player
// even if the session is released meanwhile
func playerName(sess *session.Session) (string, error) {
	name, ok := sess.Username()
	if !ok {
		return "", model.ErrUnauthenticated
	}
	return name, nil
}
