package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buckleypaul/benchlab/internal/lab"
	"github.com/buckleypaul/benchlab/internal/store"
	"github.com/buckleypaul/benchlab/internal/toolchain"
)

// Error is a non-2xx API response.
type Error struct {
	Status   int
	Response ErrorResponse
}

func (e *Error) Error() string {
	if e.Response.Error == "" {
		return fmt.Sprintf("request failed: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("request failed: %d %s: %s", e.Status, http.StatusText(e.Status), e.Response.Error)
}

// Code returns the API error code of err, or "" when err is not an *Error.
func Code(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Response.Code
	}
	return ""
}

// Client is a thin HTTP client for the lab API.
type Client struct {
	baseURL string
	user    string
	http    *http.Client
}

// NewClient creates a client for the lab at baseURL, including the lab
// prefix (e.g. http://host:8000/uned/arduino). user is sent in the
// X-Lab-User header.
func NewClient(baseURL, user string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		http: &http.Client{
			// Compiles and monitor captures run for up to a minute.
			Timeout: 3 * time.Minute,
		},
	}
}

// Session fetches the session status.
func (c *Client) Session(ctx context.Context) (SessionResponse, error) {
	var resp SessionResponse
	err := c.getJSON(ctx, "/api/session", &resp)
	return resp, err
}

// Boards lists the boards.
func (c *Client) Boards(ctx context.Context) ([]lab.BoardStatus, error) {
	var resp BoardsResponse
	err := c.getJSON(ctx, "/api/boards", &resp)
	return resp.Boards, err
}

// Examples lists the examples of a board.
func (c *Client) Examples(ctx context.Context, board string) (ExamplesResponse, error) {
	var resp ExamplesResponse
	err := c.getJSON(ctx, "/api/boards/"+url.PathEscape(board)+"/examples", &resp)
	return resp, err
}

// Example fetches one example.
func (c *Client) Example(ctx context.Context, board, file string) (ExampleResponse, error) {
	var resp ExampleResponse
	err := c.getJSON(ctx, "/api/boards/"+url.PathEscape(board)+"/examples/"+url.PathEscape(file), &resp)
	return resp, err
}

// Compile builds text for a board.
func (c *Client) Compile(ctx context.Context, board, text string) (toolchain.CompileResult, error) {
	var resp toolchain.CompileResult
	err := c.postJSON(ctx, "/api/boards/"+url.PathEscape(board)+"/compile", CompileRequest{Text: text}, &resp)
	return resp, err
}

// Execute uploads the user build or the stop firmware.
func (c *Client) Execute(ctx context.Context, board string, target toolchain.Target) (toolchain.UploadResult, error) {
	var resp toolchain.UploadResult
	err := c.postJSON(ctx, "/api/boards/"+url.PathEscape(board)+"/execute", ExecuteRequest{Target: string(target)}, &resp)
	return resp, err
}

// Monitor captures serial output for the given number of seconds.
func (c *Client) Monitor(ctx context.Context, board string, baudRate, seconds int) (toolchain.MonitorResult, error) {
	q := url.Values{}
	if baudRate > 0 {
		q.Set("baudrate", strconv.Itoa(baudRate))
	}
	if seconds > 0 {
		q.Set("seconds", strconv.Itoa(seconds))
	}
	var resp toolchain.MonitorResult
	path := "/api/boards/" + url.PathEscape(board) + "/monitor"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	err := c.getJSON(ctx, path, &resp)
	return resp, err
}

// Suggest asks the lab's suggestion service to review text.
func (c *Client) Suggest(ctx context.Context, board, text string) (SuggestResponse, error) {
	var resp SuggestResponse
	err := c.postJSON(ctx, "/api/boards/"+url.PathEscape(board)+"/suggest", SuggestRequest{Text: text}, &resp)
	return resp, err
}

// Reset power-cycles the hub and flashes the stop firmware.
func (c *Client) Reset(ctx context.Context) (lab.ResetResult, error) {
	var resp lab.ResetResult
	err := c.postJSON(ctx, "/api/reset", struct{}{}, &resp)
	return resp, err
}

// History fetches the operation history.
func (c *Client) History(ctx context.Context) (store.History, error) {
	var resp store.History
	err := c.getJSON(ctx, "/api/history", &resp)
	return resp, err
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.user != "" {
		req.Header.Set(UserHeader, c.user)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		apiErr := &Error{Status: res.StatusCode}
		if json.Unmarshal(body, &apiErr.Response) != nil {
			apiErr.Response.Error = strings.TrimSpace(string(body))
		}
		// A tool that could not be started still yields a result body.
		if res.StatusCode == http.StatusBadGateway && apiErr.Response.Code != CodeSuggestFailed {
			if apiErr.Response.Code == "" {
				apiErr.Response.Code = CodeToolFailed
			}
			if out != nil {
				_ = json.Unmarshal(body, out)
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
