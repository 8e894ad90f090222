package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"aihub-gateway/internal/models"
	"aihub-gateway/internal/store"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(c echo.Context) error {
	var req models.ChatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := validatePrompt(req.Prompt, req.Models); err != nil {
		return err
	}

	resp := s.dispatcher.Dispatch(c.Request().Context(), req)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req models.CreateSessionRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Title) == "" {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "title must not be empty",
			Type:    "invalid_request_error",
		}
	}

	session, err := s.sessions.CreateSession(c.Request().Context(), req.Title)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return c.JSON(http.StatusOK, session)
}

func (s *Server) handleListSessions(c echo.Context) error {
	sessions, err := s.sessions.ListSessions(c.Request().Context())
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	return c.JSON(http.StatusOK, models.ListSessionsResponse{Sessions: sessions})
}

func (s *Server) handleGetSession(c echo.Context) error {
	session, err := s.sessions.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, models.GetSessionResponse{Session: *session})
}

func (s *Server) handleUpdateSession(c echo.Context) error {
	var req models.UpdateSessionRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Title) == "" {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "title must not be empty",
			Type:    "invalid_request_error",
		}
	}

	if err := s.sessions.UpdateSessionTitle(c.Request().Context(), c.Param("id"), req.Title); err != nil {
		return toHTTPError(err)
	}

	session, err := s.sessions.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, models.GetSessionResponse{Session: *session})
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if err := s.sessions.DeleteSession(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "session deleted"})
}

func (s *Server) handleSessionMessage(c echo.Context) error {
	var req models.AddMessageRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := validatePrompt(req.Prompt, req.Models); err != nil {
		return err
	}

	resp, err := s.dispatcher.DispatchToSession(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func validatePrompt(prompt string, modelIDs []string) error {
	if strings.TrimSpace(prompt) == "" {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "prompt must not be empty",
			Type:    "invalid_request_error",
		}
	}
	if len(modelIDs) == 0 {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "at least one model must be selected",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	return c.JSON(status, payload)
}

func apiErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type)
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		_ = writeError(c, httpErr.Code, fmt.Sprintf("%v", httpErr.Message), "invalid_request_error")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error")
}

func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	if errors.Is(err, store.ErrSessionNotFound) {
		return requestError{
			Status:  http.StatusNotFound,
			Message: "session not found",
			Type:    "not_found_error",
		}
	}

	return fmt.Errorf("session store: %w", err)
}
