package handlers

import (
	"errors"
	"strconv"

	"github.com/clipdigest/backend/internal/database"
	"github.com/clipdigest/backend/internal/models"
	"github.com/clipdigest/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type UserHandler struct {
	planSync *services.PlanSyncService
}

func NewUserHandler(planSync *services.PlanSyncService) *UserHandler {
	return &UserHandler{planSync: planSync}
}

// List returns all users (admin only)
func (h *UserHandler) List(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "25"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}
	offset := (page - 1) * limit

	query := database.DB.Model(&models.User{})

	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("email ILIKE ? OR username ILIKE ? OR full_name ILIKE ?", like, like, like)
	}
	if plan := c.Query("plan"); plan != "" {
		query = query.Where("plan = ?", plan)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to count users",
		})
	}

	var users []models.User
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load users",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    users,
		"meta": fiber.Map{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

// Get returns one user with their usage counts (admin only)
func (h *UserHandler) Get(c *fiber.Ctx) error {
	user, ok := loadUser(c)
	if !ok {
		return nil
	}

	var summaryCount int64
	database.DB.Model(&models.Summary{}).
		Where("user_id = ? AND archived = ?", user.ID, false).
		Count(&summaryCount)

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user":          user,
			"summary_count": summaryCount,
		},
	})
}

// UpdateUserRequest represents admin user update request body
type UpdateUserRequest struct {
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	Plan     *string `json:"plan"`
	IsActive *bool   `json:"is_active"`
}

// Update modifies a user's profile, role, plan or active flag (admin
// only). Plan changes go through the plan synchronizer so the cached
// entitlement is invalidated like any billing-driven change.
func (h *UserHandler) Update(c *fiber.Ctx) error {
	user, ok := loadUser(c)
	if !ok {
		return nil
	}

	var req UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Role != nil {
		switch *req.Role {
		case "admin":
			updates["role"] = models.RoleAdmin
		case "member":
			updates["role"] = models.RoleMember
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid role",
			})
		}
	}

	if len(updates) > 0 {
		if err := database.DB.Model(user).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to update user",
			})
		}
	}

	if req.Plan != nil {
		plan := models.PlanTier(*req.Plan)
		switch plan {
		case models.PlanFree, models.PlanPro, models.PlanEnterprise:
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid plan",
			})
		}
		if err := h.planSync.SyncUserPlan(user.ID, plan, nil, nil, nil); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to update plan",
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "User updated",
	})
}

// Deactivate disables a user account (admin only)
func (h *UserHandler) Deactivate(c *fiber.Ctx) error {
	user, ok := loadUser(c)
	if !ok {
		return nil
	}

	if err := database.DB.Model(user).Update("is_active", false).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to deactivate user",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "User deactivated",
	})
}

// loadUser resolves the :id param. On failure the error response has
// already been written and ok is false.
func loadUser(c *fiber.Ctx) (*models.User, bool) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid user ID",
		})
		return nil, false
	}

	var user models.User
	if err := database.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "User not found",
			})
			return nil, false
		}
		c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load user",
		})
		return nil, false
	}
	return &user, true
}
