package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DannyyLC/uaa-indexing/internal/jobstore"
	"github.com/DannyyLC/uaa-indexing/internal/middleware"
	"github.com/DannyyLC/uaa-indexing/internal/service"
	"github.com/DannyyLC/uaa-indexing/internal/types"
)

type DocumentHandler struct {
	documentService *service.Document
	maxFileSize     int64
}

func NewDocumentHandler(documentService *service.Document, maxFileSize int64) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		maxFileSize:     maxFileSize,
	}
}

// Upload accepts a multipart document plus its topic and queues it for
// indexing. The response is a 202 with the job id; indexing happens
// asynchronously.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID := middleware.GetUserID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file is required",
		})
		return
	}

	if fileHeader.Size > h.maxFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "file exceeds the maximum allowed size",
		})
		return
	}

	topic := c.PostForm("topic")
	if strings.TrimSpace(topic) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "topic is required",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read upload",
		})
		return
	}
	defer file.Close()

	resp, err := h.documentService.Accept(c, userID, &service.Upload{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Topic:    topic,
		Size:     fileHeader.Size,
		Content:  file,
	})
	if err != nil {
		statusCode := http.StatusInternalServerError
		message := "Failed to accept upload"

		errMsg := err.Error()
		if strings.Contains(errMsg, "required") || strings.Contains(errMsg, "unsupported") {
			statusCode = http.StatusBadRequest
			message = errMsg
		}

		c.JSON(statusCode, gin.H{
			"error": message,
		})
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// GetJob returns the status of one job owned by the caller.
func (h *DocumentHandler) GetJob(c *gin.Context) {
	userID := middleware.GetUserID(c)
	jobID := c.Param("id")

	job, err := h.documentService.GetJob(c, userID, jobID)
	if err != nil {
		h.writeJobError(c, err, "Failed to get job")
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs returns the caller's jobs, optionally filtered by status and topic.
func (h *DocumentHandler) ListJobs(c *gin.Context) {
	userID := middleware.GetUserID(c)

	limit, _ := strconv.Atoi(c.Query("limit"))
	status := types.JobStatus(c.Query("status"))
	topic := c.Query("topic")

	jobs, err := h.documentService.ListJobs(c, userID, status, topic, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// CancelJob cancels a pending or processing job. Finished jobs are reported
// as a conflict rather than silently accepted.
func (h *DocumentHandler) CancelJob(c *gin.Context) {
	userID := middleware.GetUserID(c)
	jobID := c.Param("id")

	cancelled, err := h.documentService.Cancel(c, userID, jobID)
	if err != nil {
		h.writeJobError(c, err, "Failed to cancel job")
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Job already finished",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"status": string(types.StatusCancelled),
	})
}

// ListTopics returns the distinct topics the caller has indexed under.
func (h *DocumentHandler) ListTopics(c *gin.Context) {
	userID := middleware.GetUserID(c)

	topics, err := h.documentService.Topics(c, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list topics",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"topics": topics,
	})
}

// DeleteTopic removes everything the caller has indexed under a topic.
func (h *DocumentHandler) DeleteTopic(c *gin.Context) {
	userID := middleware.GetUserID(c)
	topic := c.Param("topic")

	deleted, err := h.documentService.DeleteTopic(c, userID, topic)
	if err != nil {
		statusCode := http.StatusInternalServerError
		message := "Failed to delete topic"
		if strings.Contains(err.Error(), "required") {
			statusCode = http.StatusBadRequest
			message = err.Error()
		}
		c.JSON(statusCode, gin.H{
			"error": message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"topic":           topic,
		"vectors_removed": deleted,
	})
}

// Stats returns the caller's job counts by status.
func (h *DocumentHandler) Stats(c *gin.Context) {
	userID := middleware.GetUserID(c)

	stats, err := h.documentService.Stats(c, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *DocumentHandler) writeJobError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, jobstore.ErrJobNotFound), errors.Is(err, service.ErrNotOwner):
		// Not-owned jobs read as not found so ids are not probeable.
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fallback,
		})
	}
}
