package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcoot/wordgroups/internal/model"
)

// ResponseType discriminates the server message variants
type ResponseType string

const (
	TypeError        ResponseType = "error"
	TypeGeneric      ResponseType = "generic"
	TypeGameInfo     ResponseType = "gameInfo"
	TypeProposal     ResponseType = "proposal"
	TypeGameStats    ResponseType = "gameStats"
	TypePlayerStats  ResponseType = "playerStats"
	TypeLeaderboard  ResponseType = "leaderboard"
	TypeAdminInfo    ResponseType = "adminInfo"
	TypeNotification ResponseType = "notification"
)

// ErrorCode is the machine readable reason carried by an error response
type ErrorCode string

const (
	CodeBadRequest      ErrorCode = "BAD_REQUEST"
	CodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	CodeForbidden       ErrorCode = "FORBIDDEN"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeConflict        ErrorCode = "CONFLICT"
	CodeInvalidWords    ErrorCode = "INVALID_WORDS"
	CodeDuplicateGuess  ErrorCode = "DUPLICATE_GUESS"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeInternal        ErrorCode = "INTERNAL"
)

// StatusOK is the code of every successful response
const StatusOK = 200

// Response is one of the server message variants
type Response interface {
	ResponseType() ResponseType
	Status() int
}

// Header is shared by every variant
type Header struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Status returns the HTTP-like status code
func (h Header) Status() int {
	return h.Code
}

// OK builds a success header
func OK(message string) Header {
	return Header{Code: StatusOK, Message: message}
}

// ErrorResponse reports a failed request
type ErrorResponse struct {
	Header
	Error ErrorCode `json:"error"`
}

// GenericResponse acknowledges a request with a message only
type GenericResponse struct {
	Header
}

// GameInfoResponse describes a match from one player's point of view
type GameInfoResponse struct {
	Header
	GameID      model.RoundID `json:"gameId"`
	Run         int64         `json:"run"`
	State       string        `json:"state"`
	Grid        []string      `json:"grid"`
	Guessed     []model.Group `json:"guessed"`
	TimeLeftMs  int64         `json:"timeLeftMs"`
	Mistakes    int           `json:"mistakes"`
	MaxMistakes int           `json:"maxMistakes"`
	Score       int           `json:"score"`
	Finished    bool          `json:"finished"`
	Outcome     string        `json:"outcome,omitempty"`
	Solution    []model.Group `json:"solution,omitempty"`
}

// ProposalResponse is the result of a guess that was scored
type ProposalResponse struct {
	Header
	Correct           bool          `json:"correct"`
	Theme             string        `json:"theme,omitempty"`
	AutoCompleted     string        `json:"autoCompleted,omitempty"`
	Score             int           `json:"score"`
	Mistakes          int           `json:"mistakes"`
	RemainingMistakes int           `json:"remainingMistakes"`
	Finished          bool          `json:"finished"`
	Outcome           string        `json:"outcome"`
	Guessed           []model.Group `json:"guessed"`
}

// GameStatsResponse aggregates every participant of a match
type GameStatsResponse struct {
	Header
	GameID       model.RoundID `json:"gameId"`
	State        string        `json:"state"`
	Participants int           `json:"participants"`
	Finished     int           `json:"finished"`
	Won          int           `json:"won"`
	Lost         int           `json:"lost"`
	TimedOut     int           `json:"timedOut"`
	AverageScore float64       `json:"averageScore"`
	TimeLeftMs   int64         `json:"timeLeftMs"`
}

// PlayerStatsResponse carries cumulative account statistics
type PlayerStatsResponse struct {
	Header
	Username         string  `json:"username"`
	Played           int     `json:"played"`
	Won              int     `json:"won"`
	WinRate          float64 `json:"winRate"`
	CurrentStreak    int     `json:"currentStreak"`
	MaxStreak        int     `json:"maxStreak"`
	MistakeHistogram []int   `json:"mistakeHistogram"`
	RankScore        int     `json:"rankScore"`
}

// LeaderboardRow is one ranked player
type LeaderboardRow struct {
	Position int    `json:"position"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// LeaderboardResponse lists ranked players
type LeaderboardResponse struct {
	Header
	Rows []LeaderboardRow `json:"rows"`
}

// PlayerView is a player's progress as shown to admins
type PlayerView struct {
	GuessedThemes []string `json:"guessedThemes"`
	Mistakes      int      `json:"mistakes"`
	Finished      bool     `json:"finished"`
	Outcome       string   `json:"outcome"`
}

// AdminInfoResponse reveals live match internals
type AdminInfoResponse struct {
	Header
	GameID   model.RoundID         `json:"gameId"`
	Run      int64                 `json:"run"`
	Solution []model.Group         `json:"solution"`
	Players  map[string]PlayerView `json:"players,omitempty"`
}

// NotificationResponse is an unsolicited round event
type NotificationResponse struct {
	Header
	Event      model.EventType `json:"event"`
	GameID     model.RoundID   `json:"gameId"`
	Run        int64           `json:"run"`
	DurationMs int64           `json:"durationMs,omitempty"`
	Solution   []model.Group   `json:"solution,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (ErrorResponse) ResponseType() ResponseType        { return TypeError }
func (GenericResponse) ResponseType() ResponseType      { return TypeGeneric }
func (GameInfoResponse) ResponseType() ResponseType     { return TypeGameInfo }
func (ProposalResponse) ResponseType() ResponseType     { return TypeProposal }
func (GameStatsResponse) ResponseType() ResponseType    { return TypeGameStats }
func (PlayerStatsResponse) ResponseType() ResponseType  { return TypePlayerStats }
func (LeaderboardResponse) ResponseType() ResponseType  { return TypeLeaderboard }
func (AdminInfoResponse) ResponseType() ResponseType    { return TypeAdminInfo }
func (NotificationResponse) ResponseType() ResponseType { return TypeNotification }

// NewError builds an error response
func NewError(status int, code ErrorCode, message string) *ErrorResponse {
	return &ErrorResponse{Header: Header{Code: status, Message: message}, Error: code}
}

// NewGeneric builds a plain acknowledgement
func NewGeneric(message string) *GenericResponse {
	return &GenericResponse{Header: OK(message)}
}

// NewNotification converts a round event to its wire form
func NewNotification(e model.Event) *NotificationResponse {
	msg := fmt.Sprintf("round %d started", e.RoundID)
	if e.Type == model.EventRoundEnded {
		msg = fmt.Sprintf("round %d ended", e.RoundID)
	}
	return &NotificationResponse{
		Header:     OK(msg),
		Event:      e.Type,
		GameID:     e.RoundID,
		Run:        e.Run,
		DurationMs: e.Duration.Milliseconds(),
		Solution:   e.Solution,
		Timestamp:  e.Timestamp,
	}
}

// EncodeResponse renders a response as one wire message, terminator included
func EncodeResponse(resp Response) ([]byte, error) {
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(resp.ResponseType())
	fields["type"] = tag

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return append(out, Terminator), nil
}

type responseEnvelope struct {
	Type ResponseType `json:"type"`
}

// DecodeResponse decodes one server message by its type discriminator
func DecodeResponse(message string) (Response, error) {
	var env responseEnvelope
	if err := json.Unmarshal([]byte(message), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
	}

	var resp Response
	switch env.Type {
	case TypeError:
		resp = &ErrorResponse{}
	case TypeGeneric:
		resp = &GenericResponse{}
	case TypeGameInfo:
		resp = &GameInfoResponse{}
	case TypeProposal:
		resp = &ProposalResponse{}
	case TypeGameStats:
		resp = &GameStatsResponse{}
	case TypePlayerStats:
		resp = &PlayerStatsResponse{}
	case TypeLeaderboard:
		resp = &LeaderboardResponse{}
	case TypeAdminInfo:
		resp = &AdminInfoResponse{}
	case TypeNotification:
		resp = &NotificationResponse{}
	default:
		return nil, fmt.Errorf("%w: unknown response type %q", model.ErrMalformedPayload, env.Type)
	}

	if err := json.Unmarshal([]byte(message), resp); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
	}
	return resp, nil
}
