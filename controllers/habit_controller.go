package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/greenloop/ecotrack/config"
	"github.com/greenloop/ecotrack/models"
	"github.com/greenloop/ecotrack/services"
	"github.com/greenloop/ecotrack/utils"
)

// HabitController handles habit CRUD and completion through per-user sessions.
type HabitController struct {
	manager *services.Manager
}

// NewHabitController creates a HabitController.
func NewHabitController(manager *services.Manager) *HabitController {
	return &HabitController{manager: manager}
}

type habitRequest struct {
	Title       string     `json:"title" binding:"required,max=200"`
	Description string     `json:"description" binding:"max=2000"`
	Category    string     `json:"category"`
	Points      int        `json:"points"`
	Date        *time.Time `json:"date"`
}

// List returns the caller's habits, newest date first. An optional
// ?date=2006-01-02 query narrows the list to a single calendar day. The
// show_completed profile preference hides completed entries unless
// ?all=true is passed.
func (h *HabitController) List(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	sess, err := h.manager.Attach(ctx.Request.Context(), userID)
	if err != nil {
		respondStoreError(ctx, 50020, err)
		return
	}
	snap := sess.Snapshot()

	habits := snap.Habits
	if raw := ctx.Query("date"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40020, "date must be formatted as 2006-01-02")
			return
		}
		habits = services.HabitsOnDate(habits, day)
	}
	if snap.User != nil && !snap.User.ShowCompleted && ctx.Query("all") != "true" {
		visible := make([]models.Habit, 0, len(habits))
		for _, habit := range habits {
			if !habit.Completed {
				visible = append(visible, habit)
			}
		}
		habits = visible
	}

	utils.Success(ctx, gin.H{"habits": habits, "total": len(habits)})
}

// Create adds a new habit for the caller.
func (h *HabitController) Create(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req habitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid request payload")
		return
	}
	if req.Category != "" && !models.ValidCategory(req.Category) {
		utils.Error(ctx, http.StatusBadRequest, 40022, "unknown habit category")
		return
	}

	habit := models.Habit{
		UserID:      userID,
		Title:       utils.Sanitize(strings.TrimSpace(req.Title)),
		Description: utils.Sanitize(req.Description),
		Category:    req.Category,
		Points:      req.Points,
	}
	if habit.Points <= 0 {
		habit.Points = config.Get().DefaultHabitPoints
	}
	if req.Date != nil {
		habit.Date = *req.Date
	}

	sess, err := h.manager.Attach(ctx.Request.Context(), userID)
	if err != nil {
		respondStoreError(ctx, 50021, err)
		return
	}
	snap, err := sess.AddHabit(ctx.Request.Context(), &habit)
	if err != nil {
		respondStoreError(ctx, 50022, err)
		return
	}
	invalidateStatsCache(userID)

	utils.Respond(ctx, http.StatusCreated, 0, "success", gin.H{
		"habit": habit,
		"today": snap.Today,
	})
}

// Update replaces the mutable fields of an existing habit.
func (h *HabitController) Update(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	habitID := ctx.Param("id")

	var req habitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid request payload")
		return
	}
	if req.Category != "" && !models.ValidCategory(req.Category) {
		utils.Error(ctx, http.StatusBadRequest, 40022, "unknown habit category")
		return
	}

	sess, err := h.manager.Attach(ctx.Request.Context(), userID)
	if err != nil {
		respondStoreError(ctx, 50023, err)
		return
	}

	habit := models.Habit{
		ID:          habitID,
		UserID:      userID,
		Title:       utils.Sanitize(strings.TrimSpace(req.Title)),
		Description: utils.Sanitize(req.Description),
		Category:    req.Category,
		Points:      req.Points,
	}
	if req.Date != nil {
		habit.Date = *req.Date
	}

	snap, err := sess.UpdateHabit(ctx.Request.Context(), &habit)
	if err != nil {
		respondStoreError(ctx, 50024, err)
		return
	}
	invalidateStatsCache(userID)

	utils.Success(ctx, gin.H{"habit": habit, "today": snap.Today})
}

// Delete removes a habit.
func (h *HabitController) Delete(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	habitID := ctx.Param("id")

	sess, err := h.manager.Attach(ctx.Request.Context(), userID)
	if err != nil {
		respondStoreError(ctx, 50025, err)
		return
	}
	snap, err := sess.DeleteHabit(ctx.Request.Context(), habitID)
	if err != nil {
		respondStoreError(ctx, 50026, err)
		return
	}
	invalidateStatsCache(userID)

	utils.Success(ctx, gin.H{"deleted": habitID, "today": snap.Today})
}

// Complete marks a habit done, awards its points, and reports any badges the
// new total unlocked. Completing an already-completed habit is a no-op.
func (h *HabitController) Complete(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	habitID := ctx.Param("id")

	sess, err := h.manager.Attach(ctx.Request.Context(), userID)
	if err != nil {
		respondStoreError(ctx, 50027, err)
		return
	}
	snap, err := sess.CompleteHabit(ctx.Request.Context(), habitID)
	if err != nil {
		respondStoreError(ctx, 50028, err)
		return
	}
	invalidateStatsCache(userID)

	resp := gin.H{
		"today":      snap.Today,
		"new_badges": snap.NewBadges,
	}
	if snap.User != nil {
		resp["total_points"] = snap.User.TotalPoints
		resp["current_streak"] = snap.User.CurrentStreak
		resp["longest_streak"] = snap.User.LongestStreak
	}
	utils.Success(ctx, resp)
}
