package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/studybuddy/backend/internal/store"
)

type SessionsHandler struct {
	Store *store.Store
}

func (h *SessionsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.remove)
}

// ListSessions
//
//	@Summary	List chat sessions
//	@Tags		sessions
//	@Produce	json
//	@Success	200	{object}	SessionListResponse
//	@Router		/api/chat-sessions [get]
func (h *SessionsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	sessions, err := h.Store.ListChatSessions(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sessions == nil {
		sessions = []store.ChatSessionInfo{}
	}
	return c.JSON(http.StatusOK, SessionListResponse{Sessions: sessions})
}

// GetSession
//
//	@Summary	Get one chat session with its messages
//	@Tags		sessions
//	@Produce	json
//	@Param		id	path		string	true	"Session ID"
//	@Success	200	{object}	SessionResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/chat-sessions/{id} [get]
func (h *SessionsHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	sess, err := h.Store.GetChatSession(c.Request().Context(), userID, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sess.Messages == nil {
		sess.Messages = []store.Message{}
	}
	return c.JSON(http.StatusOK, SessionResponse{
		ID:        sess.ID,
		Title:     sess.Title,
		Summary:   sess.Summary,
		Messages:  sess.Messages,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	})
}

// DeleteSession
//
//	@Summary	Delete a chat session
//	@Tags		sessions
//	@Param		id	path	string	true	"Session ID"
//	@Success	204
//	@Failure	404	{object}	HTTPError
//	@Router		/api/chat-sessions/{id} [delete]
func (h *SessionsHandler) remove(c echo.Context) error {
	userID := c.Get("user_id").(string)
	err := h.Store.DeleteChatSession(c.Request().Context(), userID, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
