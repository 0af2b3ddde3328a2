package api

import (
	"github.com/buckleypaul/benchlab/internal/examples"
	"github.com/buckleypaul/benchlab/internal/lab"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest      = "bad_request"
	CodeUnauthorized    = "unauthorized"
	CodeUnknownBoard    = "unknown_board"
	CodeNotFound        = "not_found"
	CodeBoardBusy       = "board_busy"
	CodeSessionExpired  = "session_expired"
	CodeToolFailed      = "tool_failed"
	CodeSuggestDisabled = "suggest_disabled"
	CodeSuggestFailed   = "suggest_failed"
	CodeInternal        = "internal"
)

// UserHeader authenticates API clients that do not hold the session cookie.
const UserHeader = "X-Lab-User"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Board and State are set for board_busy.
	Board string `json:"board,omitempty"`
	State string `json:"state,omitempty"`
}

// LoginRequest starts a browser session.
type LoginRequest struct {
	Email string `json:"email"`
}

// LoginResponse confirms the login.
type LoginResponse struct {
	OK bool `json:"ok"`
}

// SessionResponse describes the running session.
type SessionResponse struct {
	lab.Status
	User      string `json:"user"`
	CamURL    string `json:"cam_url,omitempty"`
	URLPrefix string `json:"url_prefix"`
}

// BoardsResponse lists the lab boards.
type BoardsResponse struct {
	Boards []lab.BoardStatus `json:"boards"`
}

// ExamplesResponse lists the examples of a board.
type ExamplesResponse struct {
	Board    string             `json:"board"`
	Examples []examples.Example `json:"examples"`
}

// ExampleResponse is the source of one example.
type ExampleResponse struct {
	Board string `json:"board"`
	File  string `json:"file"`
	Name  string `json:"name"`
	Text  string `json:"text"`
}

// CompileRequest carries the sketch to build.
type CompileRequest struct {
	Text string `json:"text"`
}

// ExecuteRequest selects the firmware to upload, "user" or "stop".
type ExecuteRequest struct {
	Target string `json:"target"`
}

// SuggestRequest carries the sketch to review.
type SuggestRequest struct {
	Text string `json:"text"`
}

// SuggestResponse is the suggestion service's answer for a board's sketch.
type SuggestResponse struct {
	Board      string `json:"board"`
	Suggestion string `json:"suggestion"`
}
