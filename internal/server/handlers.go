package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/buckleypaul/benchlab/internal/api"
	"github.com/buckleypaul/benchlab/internal/arbiter"
	"github.com/buckleypaul/benchlab/internal/board"
	"github.com/buckleypaul/benchlab/internal/examples"
	"github.com/buckleypaul/benchlab/internal/lab"
	"github.com/buckleypaul/benchlab/internal/toolchain"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.lab.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                true,
		"expired":           st.Expired,
		"remaining_seconds": st.Remaining,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.SessionResponse{
		Status:    s.lab.Status(),
		User:      s.cfg.UserEmail,
		CamURL:    s.cfg.CamURL,
		URLPrefix: s.cfg.Prefix,
	})
}

func (s *Server) handleBoards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.BoardsResponse{Boards: s.lab.Boards()})
}

// boardID returns the {id} URL parameter, writing a 404 when the board is
// not configured.
func (s *Server) boardID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !s.lab.Registry().Has(id) {
		writeJSONError(w, http.StatusNotFound, api.CodeUnknownBoard, "unknown board "+strconv.Quote(id))
		return "", false
	}
	return id, true
}

func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	id, ok := s.boardID(w, r)
	if !ok {
		return
	}
	list, err := s.catalog.List(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ExamplesResponse{Board: id, Examples: list})
}

func (s *Server) handleExample(w http.ResponseWriter, r *http.Request) {
	id, ok := s.boardID(w, r)
	if !ok {
		return
	}
	file := chi.URLParam(r, "file")
	text, err := s.catalog.Read(id, file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ExampleResponse{Board: id, File: file, Name: examples.DisplayName(file), Text: text})
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.boardID(w, r)
	if !ok {
		return
	}
	text, ok := readSketch(w, r)
	if !ok {
		return
	}

	res, err := s.lab.Compile(r.Context(), id, text)
	s.writeResult(w, res, err)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.boardID(w, r)
	if !ok {
		return
	}
	if s.cfg.Suggester == nil {
		writeJSONError(w, http.StatusServiceUnavailable, api.CodeSuggestDisabled, "code suggestions are not configured")
		return
	}
	text, ok := readSketch(w, r)
	if !ok {
		return
	}

	suggestion, err := s.cfg.Suggester.Suggest(r.Context(), text)
	if err != nil {
		s.logger.Warn("suggestion failed", "board", id, "error", err)
		writeJSONError(w, http.StatusBadGateway, api.CodeSuggestFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.SuggestResponse{Board: id, Suggestion: suggestion})
}

// readSketch reads the "text" field of a JSON or form body, writing a 400
// when the body cannot be decoded.
func readSketch(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSketchBytes)

	var req api.CompileRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, api.CodeBadRequest, "invalid json")
			return "", false
		}
	} else {
		req.Text = r.FormValue("text")
	}
	return req.Text, true
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := s.boardID(w, r)
	if !ok {
		return
	}

	var req api.ExecuteRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, api.CodeBadRequest, "invalid json")
			return
		}
	} else {
		req.Target = r.FormValue("target")
	}
	if req.Target == "" {
		req.Target = string(toolchain.TargetUser)
	}
	target, err := toolchain.ParseTarget(req.Target)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, api.CodeBadRequest, err.Error())
		return
	}

	res, err := s.lab.Upload(r.Context(), id, target)
	s.writeResult(w, res, err)
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	id, ok := s.boardID(w, r)
	if !ok {
		return
	}

	baud := s.cfg.BaudRate
	if v := r.URL.Query().Get("baudrate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, api.CodeBadRequest, "invalid baudrate")
			return
		}
		baud = n
	}
	d := s.cfg.MonitorDefault
	if v := r.URL.Query().Get("seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, api.CodeBadRequest, "invalid seconds")
			return
		}
		d = time.Duration(n) * time.Second
	}
	d = min(d, s.cfg.MonitorMax)

	res, err := s.lab.Monitor(r.Context(), id, baud, d)
	s.writeResult(w, res, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	res, err := s.lab.Reset(r.Context())
	s.writeResult(w, res, err)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.lab.History()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// writeResult writes res on success. A tool that could not be started is
// reported as 502 with the result body, which carries tool_failed and the
// diagnostic text.
func (s *Server) writeResult(w http.ResponseWriter, res any, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, toolchain.ErrToolInvocationFailed):
		s.logger.Error("tool invocation failed", "error", err)
		writeJSON(w, http.StatusBadGateway, res)
	default:
		s.writeError(w, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var busy *arbiter.BusyError
	switch {
	case errors.As(err, &busy):
		writeJSON(w, http.StatusConflict, api.ErrorResponse{
			Error: err.Error(),
			Code:  api.CodeBoardBusy,
			Board: busy.Board,
			State: busy.State.String(),
		})
	case errors.Is(err, arbiter.ErrBoardBusy):
		writeJSONError(w, http.StatusConflict, api.CodeBoardBusy, err.Error())
	case errors.Is(err, board.ErrUnknownBoard):
		writeJSONError(w, http.StatusNotFound, api.CodeUnknownBoard, err.Error())
	case errors.Is(err, examples.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, api.CodeNotFound, err.Error())
	case errors.Is(err, lab.ErrSessionExpired):
		writeJSONError(w, http.StatusGone, api.CodeSessionExpired, err.Error())
	case errors.Is(err, toolchain.ErrToolInvocationFailed):
		writeJSONError(w, http.StatusBadGateway, api.CodeToolFailed, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, api.CodeInternal, "internal error")
	}
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}
