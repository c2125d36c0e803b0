package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/greenloop/ecotrack/models"
	"github.com/greenloop/ecotrack/services"
	"github.com/greenloop/ecotrack/utils"
)

const statsCacheTTL = 60 * time.Second

func statsCacheKey(userID uint, kind string) string {
	return fmt.Sprintf("ecotrack:cache:stats:user:%d:%s", userID, kind)
}

func warnCountFailure(which string, err error) {
	if utils.Sugar != nil {
		utils.Sugar.Warnf("stats: %s count failed: %v", which, err)
	}
}

func invalidateStatsCache(userID uint) {
	utils.InvalidateByPrefix(fmt.Sprintf("ecotrack:cache:stats:user:%d:", userID))
}

// StatsController serves per-user progress figures and service-wide counters.
type StatsController struct {
	db      *gorm.DB
	manager *services.Manager
}

// NewStatsController creates a StatsController.
func NewStatsController(db *gorm.DB, manager *services.Manager) *StatsController {
	return &StatsController{db: db, manager: manager}
}

// Today returns the caller's progress for the current calendar day.
func (s *StatsController) Today(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	sess, err := s.manager.Attach(ctx.Request.Context(), userID)
	if err != nil {
		respondStoreError(ctx, 50030, err)
		return
	}
	snap := sess.Snapshot()

	resp := gin.H{"today": snap.Today}
	if snap.User != nil {
		resp["total_points"] = snap.User.TotalPoints
		resp["current_streak"] = snap.User.CurrentStreak
		resp["longest_streak"] = snap.User.LongestStreak
	}
	utils.Success(ctx, resp)
}

// Weekly returns the caller's completion counts for the last seven days,
// oldest day first. Results are cached briefly in Redis.
func (s *StatsController) Weekly(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	cacheKey := statsCacheKey(userID, "weekly")
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		var cached []services.DayStat
		if json.Unmarshal(b, &cached) == nil {
			utils.Success(ctx, gin.H{"week": cached, "cached": true})
			return
		}
	}

	sess, err := s.manager.Attach(ctx.Request.Context(), userID)
	if err != nil {
		respondStoreError(ctx, 50031, err)
		return
	}
	snap := sess.Snapshot()

	utils.CacheSetJSON(cacheKey, snap.Week, statsCacheTTL)
	utils.Success(ctx, gin.H{"week": snap.Week, "cached": false})
}

// Service returns aggregate service counters.
func (s *StatsController) Service(ctx *gin.Context) {
	var userCount int64
	var habitCount int64
	var completedCount int64
	var dailyActive int64

	// Each counter degrades to 0 instead of failing the whole endpoint, but
	// the failure itself is always logged.
	if err := s.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		warnCountFailure("user", err)
		userCount = 0
	}

	if err := s.db.Model(&models.Habit{}).Count(&habitCount).Error; err != nil {
		warnCountFailure("habit", err)
		habitCount = 0
	}

	if err := s.db.Model(&models.Habit{}).Where("completed = ?", true).Count(&completedCount).Error; err != nil {
		warnCountFailure("completed habit", err)
		completedCount = 0
	}

	// Daily active: distinct users with recorded API activity today.
	// Use string date equality to avoid timezone/type mismatches with DATE column
	today := time.Now().In(time.Local).Format("2006-01-02")
	if err := s.db.Model(&models.UsageDay{}).
		Where("date = ?", today).
		Distinct("user_id").
		Count(&dailyActive).Error; err != nil {
		warnCountFailure("daily active", err)
		dailyActive = 0
	}

	utils.Success(ctx, gin.H{
		"user_count":            userCount,
		"habit_count":           habitCount,
		"completed_habit_count": completedCount,
		"daily_active_count":    dailyActive,
	})
}
