package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/greenloop/ecotrack/utils"
)

func registerRequest(t *testing.T, body, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	ctx.Request = req

	// store/auth/manager are never reached on the guarded paths under test
	NewAuthController(nil, nil, nil).Register(ctx)
	return w
}

// A banned address is rejected before the verification code is looked at, so
// the user's still-valid code survives for a later legitimate attempt.
func TestRegisterBanDoesNotConsumeCode(t *testing.T) {
	const ip = "192.0.2.7"
	const email = "ivy@example.com"
	const code = "424242"

	utils.RegistrationBan(ip)
	utils.SaveCode(email, code, time.Minute)

	body := `{"username":"ivy","email":"` + email + `","password":"secret123","code":"` + code + `"}`
	w := registerRequest(t, body, ip+":40612")

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if !utils.VerifyAndConsumeCode(email, code) {
		t.Fatal("rejected attempt consumed the verification code")
	}
}

func TestRegisterPasswordMismatchDoesNotConsumeCode(t *testing.T) {
	const email = "fern@example.com"
	const code = "171717"
	utils.SaveCode(email, code, time.Minute)

	body := `{"username":"fern","email":"` + email + `","password":"secret123","confirm":"different","code":"` + code + `"}`
	w := registerRequest(t, body, "192.0.2.8:40613")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !utils.VerifyAndConsumeCode(email, code) {
		t.Fatal("rejected attempt consumed the verification code")
	}
}
