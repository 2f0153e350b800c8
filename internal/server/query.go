package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/studybuddy/backend/internal/chat"
	"github.com/studybuddy/backend/internal/vectorstore"
	"github.com/studybuddy/backend/provider"
)

type QueryHandler struct {
	Chat *chat.Service
}

func (h *QueryHandler) Register(g *echo.Group) {
	g.POST("", h.query)
}

// Query
//
//	@Summary		Ask a question
//	@Description	Answers a question against the student's documents and conversation history
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		QueryRequest	true	"Question and optional session id"
//	@Success		200		{object}	chat.Result
//	@Failure		400		{object}	HTTPError
//	@Failure		502		{object}	HTTPError
//	@Failure		503		{object}	HTTPError
//	@Router			/api/query [post]
func (h *QueryHandler) query(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID := c.Get("user_id").(string)

	res, err := h.Chat.Handle(c.Request().Context(), userID, req.SessionID, req.Query)
	switch {
	case errors.Is(err, chat.ErrEmptyQuery):
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	case errors.Is(err, provider.ErrProvider):
		return echo.NewHTTPError(http.StatusBadGateway, "model provider unavailable")
	case errors.Is(err, vectorstore.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "vector store unavailable")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
