package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/greenloop/ecotrack/services"
	"github.com/greenloop/ecotrack/utils"
)

// BadgeController exposes the badge catalog with the caller's unlock state.
type BadgeController struct {
	manager *services.Manager
}

// NewBadgeController creates a BadgeController.
func NewBadgeController(manager *services.Manager) *BadgeController {
	return &BadgeController{manager: manager}
}

// List returns every badge in catalog order, flagged with whether the caller
// has unlocked it.
func (b *BadgeController) List(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	sess, err := b.manager.Attach(ctx.Request.Context(), userID)
	if err != nil {
		respondStoreError(ctx, 50040, err)
		return
	}
	snap := sess.Snapshot()

	utils.Success(ctx, gin.H{"badges": services.BadgeStates(snap.Unlocked)})
}
