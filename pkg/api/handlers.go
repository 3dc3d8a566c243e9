package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medscribe/medscribe/pkg/pipeline"
	"github.com/medscribe/medscribe/pkg/store"
	"github.com/medscribe/medscribe/pkg/version"
)

// statusResponse mirrors the polling contract: status is never an error for
// unknown encounters and content is never null.
type statusResponse struct {
	Status          string `json:"status"`
	TranscriptionID int64  `json:"transcription_id"`
	Content         string `json:"content"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.String()})
}

// handleSubmit accepts a multipart audio upload and queues a transcription
// job. The response never waits for transcription to finish.
func (s *Server) handleSubmit(c *gin.Context) {
	encounterID, ok := encounterParam(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No file uploaded"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		s.logger.Error("failed to open upload", "encounterID", encounterID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error processing audio"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("failed to read upload", "encounterID", encounterID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error processing audio"})
		return
	}

	receipt, err := s.dispatcher.Submit(encounterID, data, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, pipeline.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		if errors.Is(err, pipeline.ErrBusy) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Transcription queue full, try again later"})
			return
		}
		s.logger.Error("failed to queue transcription", "encounterID", encounterID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error processing audio"})
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// handleStatus reports job state for pollers. A missing record yields the
// not_found sentinel, never a 404.
func (s *Server) handleStatus(c *gin.Context) {
	encounterID, ok := encounterParam(c)
	if !ok {
		return
	}

	rec, err := s.store.GetByEncounter(encounterID)
	if err != nil {
		s.logger.Error("status query failed", "encounterID", encounterID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error checking transcription status"})
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		Status:          rec.Status,
		TranscriptionID: rec.ID,
		Content:         rec.Content,
	})
}

func (s *Server) handleList(c *gin.Context) {
	encounterID, ok := encounterParam(c)
	if !ok {
		return
	}

	records, err := s.store.ListByEncounter(encounterID)
	if err != nil {
		s.logger.Error("list query failed", "encounterID", encounterID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error listing transcriptions"})
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	c.JSON(http.StatusOK, records)
}

// handleDelete is the administrative removal of an encounter's records; the
// pipeline itself never deletes.
func (s *Server) handleDelete(c *gin.Context) {
	encounterID, ok := encounterParam(c)
	if !ok {
		return
	}

	deleted, err := s.store.DeleteByEncounter(encounterID)
	if err != nil {
		if errors.Is(err, store.ErrNoRecords) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "No transcriptions to delete"})
			return
		}
		s.logger.Error("delete failed", "encounterID", encounterID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error deleting transcriptions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Deleted %d transcriptions", deleted)})
}

func encounterParam(c *gin.Context) (int64, bool) {
	encounterID, err := strconv.ParseInt(c.Param("encounterID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "encounterID must be an integer"})
		return 0, false
	}
	return encounterID, true
}
