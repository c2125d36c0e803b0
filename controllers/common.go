package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/greenloop/ecotrack/middleware"
	"github.com/greenloop/ecotrack/store"
	"github.com/greenloop/ecotrack/utils"
)

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

// respondStoreError maps the store error taxonomy onto HTTP outcomes.
// Transient failures surface as 503 so clients know to re-invoke; nothing
// is retried server-side.
func respondStoreError(ctx *gin.Context, code int, err error) {
	var nf *store.NotFoundError
	if errors.As(err, &nf) {
		utils.Error(ctx, http.StatusNotFound, code, nf.Error())
		return
	}
	var te *store.TransientError
	if errors.As(err, &te) {
		utils.Error(ctx, http.StatusServiceUnavailable, code, "storage temporarily unavailable, please retry")
		return
	}
	utils.Error(ctx, http.StatusInternalServerError, code, "operation failed")
}
