package handlers

import (
	"errors"
	"log"
	"strconv"

	"github.com/clipdigest/backend/internal/database"
	"github.com/clipdigest/backend/internal/middleware"
	"github.com/clipdigest/backend/internal/models"
	"github.com/clipdigest/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SummaryHandler struct {
	usage      *services.UsageService
	summarizer *services.SummarizerClient
	progress   *services.ProgressStore
}

func NewSummaryHandler(usage *services.UsageService, summarizer *services.SummarizerClient, progress *services.ProgressStore) *SummaryHandler {
	return &SummaryHandler{
		usage:      usage,
		summarizer: summarizer,
		progress:   progress,
	}
}

// CreateSummaryRequest represents summary creation request body
type CreateSummaryRequest struct {
	URL string `json:"url"`
}

// Create generates a new summary. Authenticated users are gated by
// their plan entitlement; anonymous callers by their fingerprint. The
// quota check runs immediately before the call to the AI service so a
// denied request never burns processing time.
func (h *SummaryHandler) Create(c *fiber.Ctx) error {
	var req CreateSummaryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if services.ExtractVideoID(req.URL) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid YouTube URL",
		})
	}

	user := middleware.GetCurrentUser(c)
	fingerprint := middleware.GetFingerprint(c)

	if user == nil && fingerprint == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Anonymous requests require a client fingerprint",
		})
	}

	var err error
	if user != nil {
		err = h.usage.EnforceUsageLimit(user.ID)
	} else {
		err = h.usage.EnforceAnonymousLimit(fingerprint)
	}
	if err != nil {
		var quotaErr *services.QuotaExceededError
		if errors.As(err, &quotaErr) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": quotaErr.Reason,
				"usage": fiber.Map{
					"current": quotaErr.Current,
					"limit":   quotaErr.Limit,
				},
			})
		}
		log.Printf("Summary: usage check failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to check usage limit",
		})
	}

	taskID := uuid.New().String()
	h.progress.Set(c.Context(), taskID, "queued", 0, "")

	result, err := h.summarizer.Summarize(c.Context(), req.URL, taskID)
	if err != nil {
		h.progress.Set(c.Context(), taskID, "failed", 100, err.Error())

		var circuitErr *services.ErrCircuitOpen
		switch {
		case errors.Is(err, services.ErrInvalidVideoURL):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid YouTube URL",
			})
		case errors.Is(err, services.ErrVideoTooLong):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Video is too long, maximum duration is 2 hours",
			})
		case errors.As(err, &circuitErr):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"message": "Summarization service is temporarily unavailable. Please try again shortly",
			})
		}

		log.Printf("Summary: summarization failed for task %s: %v", taskID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Summarization failed",
		})
	}

	summary := models.Summary{
		UUID:          uuid.New().String(),
		Fingerprint:   fingerprint,
		VideoID:       result.VideoID,
		VideoURL:      req.URL,
		Title:         result.Title,
		ChannelName:   result.ChannelName,
		Duration:      result.Duration,
		Content:       result.Summary,
		Synopsis:      result.Synopsis,
		KeyPoints:     result.KeyPoints,
		KeyMoments:    result.KeyMoments,
		Flashcards:    result.Flashcards,
		QuizQuestions: result.QuizQuestions,
		Glossary:      result.Glossary,
	}
	if user != nil {
		summary.UserID = &user.ID
		summary.Fingerprint = ""
	}

	if err := database.DB.Create(&summary).Error; err != nil {
		log.Printf("Summary: failed to persist summary for task %s: %v", taskID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to save summary",
		})
	}

	h.progress.Set(c.Context(), taskID, "done", 100, "")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"task_id": taskID,
		"data":    summary,
	})
}

// List returns the caller's summaries, newest first
func (h *SummaryHandler) List(c *fiber.Ctx) error {
	userID := middleware.GetCurrentUserID(c)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "25"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}
	offset := (page - 1) * limit

	archived := c.Query("archived", "false") == "true"

	query := database.DB.Model(&models.Summary{}).
		Where("user_id = ? AND archived = ?", userID, archived)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to count summaries",
		})
	}

	var summaries []models.Summary
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&summaries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load summaries",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    summaries,
		"meta": fiber.Map{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

// Get returns one summary owned by the caller
func (h *SummaryHandler) Get(c *fiber.Ctx) error {
	summary, ok := h.ownedSummary(c)
	if !ok {
		return nil
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    summary,
	})
}

// Archive hides a summary from the default list and, more importantly,
// stops it counting toward the owner's usage quota.
func (h *SummaryHandler) Archive(c *fiber.Ctx) error {
	return h.setArchived(c, true, "Summary archived")
}

// Restore brings an archived summary back; it counts toward quota again
func (h *SummaryHandler) Restore(c *fiber.Ctx) error {
	return h.setArchived(c, false, "Summary restored")
}

func (h *SummaryHandler) setArchived(c *fiber.Ctx, archived bool, message string) error {
	summary, ok := h.ownedSummary(c)
	if !ok {
		return nil
	}

	if err := database.DB.Model(summary).Update("archived", archived).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update summary",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
	})
}

// Delete permanently removes a summary
func (h *SummaryHandler) Delete(c *fiber.Ctx) error {
	summary, ok := h.ownedSummary(c)
	if !ok {
		return nil
	}

	if err := database.DB.Delete(summary).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete summary",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Summary deleted",
	})
}

// Progress reports the state of an in-flight summarization task
func (h *SummaryHandler) Progress(c *fiber.Ctx) error {
	taskID := c.Params("taskID")
	if taskID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Task ID is required",
		})
	}

	record, err := h.progress.Get(c.Context(), taskID)
	if err != nil {
		if errors.Is(err, services.ErrProgressNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Unknown task",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load progress",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    record,
	})
}

// ownedSummary loads the summary from the :id param and checks the
// caller owns it. Admins can reach any summary. On failure the error
// response has already been written and ok is false.
func (h *SummaryHandler) ownedSummary(c *fiber.Ctx) (*models.Summary, bool) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid summary ID",
		})
		return nil, false
	}

	var summary models.Summary
	if err := database.DB.First(&summary, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Summary not found",
			})
			return nil, false
		}
		c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load summary",
		})
		return nil, false
	}

	user := middleware.GetCurrentUser(c)
	if user == nil {
		c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Authentication required",
		})
		return nil, false
	}
	if user.Role != models.RoleAdmin && (summary.UserID == nil || *summary.UserID != user.ID) {
		c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Summary not found",
		})
		return nil, false
	}

	return &summary, true
}
