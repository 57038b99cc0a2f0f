package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"framerelay/internal/core/domain"
	"framerelay/internal/core/ports"
	apperrors "framerelay/pkg/errors"

	"github.com/gin-gonic/gin"
)

const directoryTimeout = 2 * time.Second

// StreamHandler exposes a read-only view of the live streams.
type StreamHandler struct {
	registry  ports.SessionRegistry
	directory ports.StreamDirectory
}

var _ ports.HTTPHandler = (*StreamHandler)(nil)

// NewStreamHandler creates the handler. directory may be nil.
func NewStreamHandler(registry ports.SessionRegistry, directory ports.StreamDirectory) *StreamHandler {
	return &StreamHandler{
		registry:  registry,
		directory: directory,
	}
}

func (h *StreamHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.GET("/streams", h.ListStreams)
		api.GET("/streams/:id", h.GetStream)
		api.GET("/directory", h.ListDirectory)
	}
}

// ListStreams returns the streams registered on this process, ordered by id.
func (h *StreamHandler) ListStreams(c *gin.Context) {
	streams := h.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"streams": streams,
		"count":   len(streams),
	})
}

func (h *StreamHandler) GetStream(c *gin.Context) {
	streamID := domain.StreamID(c.Param("id"))

	session, err := h.registry.Lookup(streamID)
	if err != nil {
		_ = c.Error(toAppError(err).WithContext("stream_id", streamID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stream": session.Info(),
	})
}

// ListDirectory returns every stream id known to the stream directory. With
// a shared backend this includes streams held by other relay processes.
func (h *StreamHandler) ListDirectory(c *gin.Context) {
	if h.directory == nil {
		_ = c.Error(apperrors.NewServiceUnavailableError("stream directory disabled"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), directoryTimeout)
	defer cancel()

	ids, err := h.directory.ListActive(ctx)
	if err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "stream directory unavailable", http.StatusServiceUnavailable))
		return
	}
	if ids == nil {
		ids = []domain.StreamID{}
	}

	c.JSON(http.StatusOK, gin.H{
		"stream_ids": ids,
		"count":      len(ids),
	})
}

// toAppError maps registry errors onto HTTP errors.
func toAppError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, domain.ErrStreamNotFound):
		return apperrors.NewNotFoundError("stream")
	case errors.Is(err, domain.ErrStreamIDTaken):
		return apperrors.NewConflictError(domain.ErrStreamIDTaken.Error())
	case errors.Is(err, domain.ErrMaxStreamsReached), errors.Is(err, domain.ErrMaxViewersReached):
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrRegistryUnavailable):
		return apperrors.NewServiceUnavailableError(domain.ErrRegistryUnavailable.Error())
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "internal server error", http.StatusInternalServerError)
	}
}
