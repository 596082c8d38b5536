package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/mcoot/wordgroups/internal/model"
)

// Operation names a client request
type Operation string

const (
	OpRegister           Operation = "register"
	OpLogin              Operation = "login"
	OpLogout             Operation = "logout"
	OpUpdateCredentials  Operation = "updateCredentials"
	OpSubmitProposal     Operation = "submitProposal"
	OpRequestGameInfo    Operation = "requestGameInfo"
	OpRequestGameStats   Operation = "requestGameStats"
	OpRequestPlayerStats Operation = "requestPlayerStats"
	OpRequestLeaderboard Operation = "requestLeaderboard"
	OpOracle             Operation = "oracle"
	OpGod                Operation = "god"
)

// Request is implemented by every decoded client request
type Request interface {
	Operation() Operation
}

// RegisterRequest creates a new account
type RegisterRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest authenticates the session
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	UDPPort  int    `json:"udpPort"`
}

// LogoutRequest ends the authenticated state of the session
type LogoutRequest struct{}

// UpdateCredentialsRequest changes username and/or password
type UpdateCredentialsRequest struct {
	OldName     string `json:"oldName"`
	NewName     string `json:"newName"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// SubmitProposalRequest is a 4-word group guess
type SubmitProposalRequest struct {
	Words []string `json:"words"`
}

// GameInfoRequest asks for the live match or an archived one
type GameInfoRequest struct {
	GameID *model.RoundID `json:"gameId,omitempty"`
}

// GameStatsRequest asks for aggregate results of a match
type GameStatsRequest struct {
	GameID *model.RoundID `json:"gameId,omitempty"`
}

// PlayerStatsRequest asks for the caller's cumulative stats
type PlayerStatsRequest struct{}

// LeaderboardRequest asks for the top N rows or a single player's row
type LeaderboardRequest struct {
	TopN       *int   `json:"topN,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
}

// OracleRequest reveals the live solution to an admin
type OracleRequest struct {
	Password string `json:"password"`
}

// GodRequest reveals the solution and every player's progress to an admin
type GodRequest struct {
	Password string `json:"password"`
}

func (RegisterRequest) Operation() Operation          { return OpRegister }
func (LoginRequest) Operation() Operation             { return OpLogin }
func (LogoutRequest) Operation() Operation            { return OpLogout }
func (UpdateCredentialsRequest) Operation() Operation { return OpUpdateCredentials }
func (SubmitProposalRequest) Operation() Operation    { return OpSubmitProposal }
func (GameInfoRequest) Operation() Operation          { return OpRequestGameInfo }
func (GameStatsRequest) Operation() Operation         { return OpRequestGameStats }
func (PlayerStatsRequest) Operation() Operation       { return OpRequestPlayerStats }
func (LeaderboardRequest) Operation() Operation       { return OpRequestLeaderboard }
func (OracleRequest) Operation() Operation            { return OpOracle }
func (GodRequest) Operation() Operation               { return OpGod }

// envelope carries the discriminator shared by every request
type envelope struct {
	Operation Operation `json:"operation"`
}

// UnknownOperationError is returned for a well-formed message naming no known operation
type UnknownOperationError struct {
	Operation Operation
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q", e.Operation)
}

// DecodeRequest decodes one framed message into a typed request
func DecodeRequest(message string) (Request, error) {
	var env envelope
	if err := json.Unmarshal([]byte(message), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
	}

	var req Request
	switch env.Operation {
	case OpRegister:
		req = &RegisterRequest{}
	case OpLogin:
		req = &LoginRequest{}
	case OpLogout:
		return &LogoutRequest{}, nil
	case OpUpdateCredentials:
		req = &UpdateCredentialsRequest{}
	case OpSubmitProposal:
		req = &SubmitProposalRequest{}
	case OpRequestGameInfo:
		req = &GameInfoRequest{}
	case OpRequestGameStats:
		req = &GameStatsRequest{}
	case OpRequestPlayerStats:
		return &PlayerStatsRequest{}, nil
	case OpRequestLeaderboard:
		req = &LeaderboardRequest{}
	case OpOracle:
		req = &OracleRequest{}
	case OpGod:
		req = &GodRequest{}
	case "":
		return nil, fmt.Errorf("%w: missing operation", model.ErrMalformedPayload)
	default:
		return nil, &UnknownOperationError{Operation: env.Operation}
	}

	if err := json.Unmarshal([]byte(message), req); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
	}
	return req, nil
}

// EncodeRequest renders a request as one wire message, terminator included
func EncodeRequest(req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	op, _ := json.Marshal(req.Operation())
	fields["operation"] = op

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return append(out, Terminator), nil
}
