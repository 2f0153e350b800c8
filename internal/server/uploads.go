package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/studybuddy/backend/internal/ingest"
)

type UploadHandler struct {
	Pipeline *ingest.Pipeline
	MaxFiles int
}

func (h *UploadHandler) Register(g *echo.Group) {
	g.POST("", h.upload)
}

// Upload
//
//	@Summary		Upload documents
//	@Description	Extracts, embeds and indexes the uploaded files for the student
//	@Tags			documents
//	@Accept			multipart/form-data
//	@Produce		json
//	@Success		200	{object}	UploadResponse
//	@Failure		400	{object}	HTTPError
//	@Failure		500	{object}	HTTPError
//	@Router			/api/upload [post]
func (h *UploadHandler) upload(c echo.Context) error {
	userID := c.Get("user_id").(string)

	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	files := form.File["files"]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files provided")
	}
	if h.MaxFiles > 0 && len(files) > h.MaxFiles {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("too many files: limit is %d", h.MaxFiles))
	}

	uploads := make([]ingest.Upload, 0, len(files))
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		uploads = append(uploads, ingest.Upload{Filename: fh.Filename, Data: data})
	}

	results, err := h.Pipeline.Ingest(c.Request().Context(), userID, uploads)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, UploadResponse{Documents: results})
}
