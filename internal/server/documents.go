package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/studybuddy/backend/internal/store"
	"github.com/studybuddy/backend/internal/vectorstore"
)

type DocumentsHandler struct {
	Store   *store.Store
	Vectors vectorstore.Store
	Logger  *log.Logger
}

func (h *DocumentsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.DELETE("/:id", h.remove)
}

// ListDocuments
//
//	@Summary	List uploaded documents
//	@Tags		documents
//	@Produce	json
//	@Success	200	{object}	DocumentListResponse
//	@Router		/api/documents [get]
func (h *DocumentsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	docs, err := h.Store.ListDocuments(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return c.JSON(http.StatusOK, DocumentListResponse{Documents: docs})
}

// DeleteDocument
//
//	@Summary		Delete a document
//	@Description	Removes the document record and its indexed pages
//	@Tags			documents
//	@Param			id	path	string	true	"Document ID"
//	@Success		204
//	@Failure		404	{object}	HTTPError
//	@Router			/api/documents/{id} [delete]
func (h *DocumentsHandler) remove(c echo.Context) error {
	userID := c.Get("user_id").(string)
	documentID := c.Param("id")

	err := h.Store.DeleteDocument(c.Request().Context(), userID, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// the record is gone either way; orphaned vectors only cost space and
	// are overwritten on re-upload
	if _, err := h.Vectors.DeleteDocument(c.Request().Context(), userID, documentID); err != nil && h.Logger != nil {
		h.Logger.Printf("deleting vectors for document %s: %v", documentID, err)
	}
	return c.NoContent(http.StatusNoContent)
}
