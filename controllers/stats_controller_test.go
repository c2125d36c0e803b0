package controllers

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/greenloop/ecotrack/utils"
)

// failingConnector yields a *sql.DB whose every connection attempt fails,
// standing in for a database that went away after startup.
type failingConnector struct{}

func (failingConnector) Connect(context.Context) (driver.Conn, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (failingConnector) Driver() driver.Driver { return failingDriver{} }

type failingDriver struct{}

func (failingDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func brokenDB(t *testing.T) *gorm.DB {
	t.Helper()
	sqlDB := sql.OpenDB(failingConnector{})
	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Discard, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	return db
}

// When every counter query fails, the endpoint still answers with zeros but
// each failure is logged, never silently swallowed.
func TestServiceStatsLogsFailedCounts(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zapcore.WarnLevel)
	prev := utils.Sugar
	utils.Sugar = zap.New(core).Sugar()
	defer func() { utils.Sugar = prev }()

	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)

	NewStatsController(brokenDB(t), nil).Service(ctx)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Data struct {
			UserCount   int64 `json:"user_count"`
			HabitCount  int64 `json:"habit_count"`
			DailyActive int64 `json:"daily_active_count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Data.UserCount != 0 || resp.Data.HabitCount != 0 || resp.Data.DailyActive != 0 {
		t.Fatalf("counts = %+v, want zeros when storage is down", resp.Data)
	}

	// one warning per failed counter: user, habit, completed habit, daily active
	if got := logs.Len(); got != 4 {
		t.Fatalf("logged %d warnings, want 4", got)
	}
}
