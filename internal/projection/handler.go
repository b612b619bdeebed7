package projection

import (
	"errors"
	"net/http"

	httperr "github.com/aevon-lab/asof/internal/core/errors"
	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the read-only snapshot routes on the given router.
// None of them computes or persists anything.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/snapshots/:type/:id", s.HandleOwnerSnapshots)
	r.GET("/v1/snapshots/:type/:id/lanes/:source_type/:source_id", s.HandleLaneSnapshot)
}

// HandleOwnerSnapshots handles GET /v1/snapshots/:type/:id
func (s *Service) HandleOwnerSnapshots(c *gin.Context) {
	var uri struct {
		Type string `uri:"type" binding:"required"`
		ID   string `uri:"id" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.StoredLanes(c.Request.Context(), identity.New(uri.Type, uri.ID))
	if err != nil {
		writeQueryError(c, err, "Failed to load snapshots")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleLaneSnapshot handles GET /v1/snapshots/:type/:id/lanes/:source_type/:source_id
// A source equal to the owner addresses the direct lane.
func (s *Service) HandleLaneSnapshot(c *gin.Context) {
	var uri struct {
		Type       string `uri:"type" binding:"required"`
		ID         string `uri:"id" binding:"required"`
		SourceType string `uri:"source_type" binding:"required"`
		SourceID   string `uri:"source_id" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}

	lane := identity.JoinLane(identity.New(uri.Type, uri.ID), identity.New(uri.SourceType, uri.SourceID))
	resp, err := s.StoredLane(c.Request.Context(), lane)
	if err != nil {
		writeQueryError(c, err, "Failed to load snapshot")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func writeQueryError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Invalid snapshot query",
			Details:   err.Error(),
		})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpSnapshotNotFoundError,
			Message:   "Snapshot not found",
			Details:   err.Error(),
		})
	case errors.Is(err, ErrStoredReadsUnsupported):
		c.JSON(http.StatusNotImplemented, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotImplementedError,
			Message:   message,
			Details:   err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   message,
			Details:   err.Error(),
		})
	}
}
