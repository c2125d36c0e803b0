package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/greenloop/ecotrack/config"
	"github.com/greenloop/ecotrack/models"
	"github.com/greenloop/ecotrack/services"
	"github.com/greenloop/ecotrack/store"
	"github.com/greenloop/ecotrack/utils"
)

// AuthController handles account registration, credential sign-in, OAuth
// providers, and profile management.
type AuthController struct {
	store   *store.Store
	auth    *services.Auth
	manager *services.Manager
}

// NewAuthController creates an AuthController.
func NewAuthController(st *store.Store, auth *services.Auth, manager *services.Manager) *AuthController {
	return &AuthController{store: st, auth: auth, manager: manager}
}

// Register handles local account registration with email verification.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		Username      string `json:"username" binding:"required,min=2,max=64"`
		Email         string `json:"email" binding:"required"`
		Password      string `json:"password" binding:"required"`
		Confirm       string `json:"confirm"`
		Code          string `json:"code"`
		CaptchaID     string `json:"captcha_id"`
		CaptchaAnswer string `json:"captcha_answer"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	if req.Confirm != "" && req.Password != req.Confirm {
		utils.Error(ctx, http.StatusBadRequest, 40002, "passwords do not match")
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || strings.TrimSpace(req.Code) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40003, "email and verification code are required")
		return
	}

	// Anti-abuse checks run before code verification: a rate-limited attempt
	// must not consume the user's still-valid verification code.
	ip := ctx.ClientIP()
	if utils.RegistrationIsBanned(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42920, "this address is temporarily restricted, try again later")
		return
	}
	if !utils.RegistrationCooldownTry(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "too many attempts, slow down")
		return
	}
	if !utils.RegistrationDailyLimitCheck(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42921, "daily registration limit reached")
		return
	}

	// The code was requested via SendEmailCode, where the captcha (when
	// enabled) was already checked. Consuming it is the last guard.
	if !utils.VerifyAndConsumeCode(email, strings.TrimSpace(req.Code)) {
		utils.Error(ctx, http.StatusBadRequest, 40004, "verification code invalid or expired")
		return
	}

	user, err := a.auth.SignUp(ctx.Request.Context(), utils.Sanitize(req.Username), email, req.Password, ip)
	if err != nil {
		a.respondAuthError(ctx, err, ip)
		return
	}
	utils.RegistrationDailyIncrement(ip)

	token, err := utils.GenerateToken(user.ID, user.Username, 72*time.Hour)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  sanitizeUserResponse(*user),
	})
}

// Login verifies email/password credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40005, "invalid request payload")
		return
	}

	user, err := a.auth.SignIn(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.respondAuthError(ctx, err, "")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, 72*time.Hour)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  sanitizeUserResponse(*user),
	})
}

// Logout invalidates the token by blacklisting it until expiration and drops
// the in-memory session.
func (a *AuthController) Logout(ctx *gin.Context) {
	authHeader := ctx.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}

	token := strings.TrimSpace(parts[1])
	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	expiresAt := time.Now().Add(72 * time.Hour)
	if claims.RegisteredClaims.ExpiresAt != nil {
		expiresAt = claims.RegisteredClaims.ExpiresAt.Time
	}

	utils.BlacklistToken(token, expiresAt)
	a.manager.Detach(claims.UserID)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the caller's profile with derived stats from the session.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	sess, err := a.manager.Attach(ctx.Request.Context(), userID)
	if err != nil {
		respondStoreError(ctx, 50010, err)
		return
	}
	snap := sess.Snapshot()
	if snap.User == nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		return
	}

	utils.Success(ctx, gin.H{
		"user":  sanitizeUserResponse(*snap.User),
		"today": snap.Today,
	})
}

// UpdateProfile updates display name, avatar symbol, goal, and the
// show-completed preference. Derived fields cannot be edited here.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Username      *string `json:"username"`
		AvatarSymbol  *string `json:"avatar_symbol"`
		Goal          *string `json:"goal"`
		ShowCompleted *bool   `json:"show_completed"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid request payload")
		return
	}

	sess, err := a.manager.Attach(ctx.Request.Context(), userID)
	if err != nil {
		respondStoreError(ctx, 50011, err)
		return
	}

	snap, err := sess.UpdateProfile(ctx.Request.Context(), func(u *models.User) {
		if req.Username != nil {
			if name := utils.Sanitize(strings.TrimSpace(*req.Username)); name != "" {
				u.Username = name
			}
		}
		if req.AvatarSymbol != nil {
			u.AvatarSymbol = strings.TrimSpace(*req.AvatarSymbol)
		}
		if req.Goal != nil {
			u.Goal = utils.Sanitize(*req.Goal)
		}
		if req.ShowCompleted != nil {
			u.ShowCompleted = *req.ShowCompleted
		}
	})
	if err != nil {
		respondStoreError(ctx, 50012, err)
		return
	}

	utils.Success(ctx, gin.H{"user": sanitizeUserResponse(*snap.User)})
}

// Captcha returns a fresh captcha id and base64 image (data URI).
func (a *AuthController) Captcha(ctx *gin.Context) {
	id, b64, err := utils.GenerateCaptcha()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to generate captcha")
		return
	}
	utils.Success(ctx, gin.H{"id": id, "image": b64})
}

// CaptchaVerify checks captcha without consuming it, used for client-side blur validation.
func (a *AuthController) CaptchaVerify(ctx *gin.Context) {
	var req struct {
		ID     string `json:"captcha_id"`
		Answer string `json:"captcha_answer"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid request payload")
		return
	}
	if !utils.VerifyCaptchaNoConsume(strings.TrimSpace(req.ID), strings.TrimSpace(req.Answer)) {
		utils.Error(ctx, http.StatusBadRequest, 40062, "captcha mismatch")
		return
	}
	utils.Success(ctx, gin.H{"ok": true})
}

// SendEmailCode sends a verification code to the user's email address.
func (a *AuthController) SendEmailCode(ctx *gin.Context) {
	var req struct {
		Email         string `json:"email" binding:"required"`
		CaptchaID     string `json:"captcha_id"`
		CaptchaAnswer string `json:"captcha_answer"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request payload")
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		utils.Error(ctx, http.StatusBadRequest, 40041, "email is required")
		return
	}
	// When enabled, captcha must be verified BEFORE sending the email code.
	if config.Get().RegisterCaptchaEnabled {
		if !utils.VerifyCaptcha(strings.TrimSpace(req.CaptchaID), strings.TrimSpace(req.CaptchaAnswer)) {
			utils.Error(ctx, http.StatusBadRequest, 40042, "captcha invalid or expired")
			return
		}
	}
	if !utils.EmailCooldownTrySet(email, 60*time.Second) {
		utils.Error(ctx, http.StatusTooManyRequests, 42911, "too many requests, try again later")
		return
	}
	code := utils.GenerateVerificationCode(6)
	subject := "EcoTrack verification code"
	body := fmt.Sprintf("Your verification code is: %s\nIt is valid for 10 minutes.", code)
	if err := utils.SendMail(email, subject, body); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to send verification code")
		return
	}
	// Save the code only after the mail went out so stale codes don't pile up.
	utils.SaveCode(email, code, 10*time.Minute)
	utils.Success(ctx, gin.H{"message": "verification code sent"})
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := ctx.Param("provider")
	cfg, err := a.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, err.Error())
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	utils.Success(ctx, gin.H{"authorization_url": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and issues a JWT.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := ctx.Param("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")

	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, 40008, "missing code or state")
		return
	}

	if !utils.ConsumeState(state) {
		utils.Error(ctx, http.StatusBadRequest, 40009, "invalid or expired state")
		return
	}

	cfg, err := a.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, err.Error())
		return
	}

	token, err := cfg.Exchange(context.Background(), code)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "failed to exchange code")
		return
	}

	userInfo, err := a.fetchOAuthUser(provider, token)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50005, err.Error())
		return
	}

	user, err := a.findOrCreateOAuthUser(ctx.Request.Context(), provider, userInfo)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to persist user")
		return
	}

	jwtToken, err := utils.GenerateToken(user.ID, user.Username, 72*time.Hour)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{"token": jwtToken, "user": sanitizeUserResponse(*user)})
}

func (a *AuthController) respondAuthError(ctx *gin.Context, err error, ip string) {
	var ae *services.AuthError
	if !errors.As(err, &ae) {
		respondStoreError(ctx, 50001, err)
		return
	}
	switch ae.Code {
	case services.AuthInvalidEmail:
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid email address")
	case services.AuthWeakPassword:
		utils.Error(ctx, http.StatusBadRequest, 40012, "password must be 6-72 characters")
	case services.AuthEmailInUse:
		utils.Error(ctx, http.StatusConflict, 40901, "email already in use")
	case services.AuthUserNotFound:
		utils.Error(ctx, http.StatusUnauthorized, 40121, "user not found")
	case services.AuthWrongPassword:
		utils.Error(ctx, http.StatusUnauthorized, 40122, "wrong password")
	default:
		if ip != "" {
			fails := utils.RegistrationFailRecord(ip)
			if fails >= config.Get().RegisterFailedMaxPerIPPerHour {
				utils.RegistrationBan(ip)
			}
		}
		utils.Error(ctx, http.StatusInternalServerError, 50002, "authentication failed")
	}
}

func (a *AuthController) oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	switch strings.ToLower(provider) {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/github/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/google/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID          string
	Username    string
	DisplayName string
	Email       string
}

func (a *AuthController) fetchOAuthUser(provider string, token *oauth2.Token) (*oauthUser, error) {
	switch strings.ToLower(provider) {
	case "github":
		return fetchGitHubUser(token)
	case "google":
		return fetchGoogleUser(token)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func (a *AuthController) findOrCreateOAuthUser(ctx context.Context, provider string, data *oauthUser) (*models.User, error) {
	user, err := a.store.UserByProvider(ctx, provider, data.ID)
	if err == nil {
		if email := strings.TrimSpace(data.Email); email != "" && email != user.Email {
			user.Email = email
			_ = a.store.SaveUser(ctx, user)
		}
		return user, nil
	}
	if !store.IsNotFound(err) {
		return nil, err
	}

	user = &models.User{
		Username:   fallback(data.DisplayName, data.Username, provider+"-user"),
		Email:      strings.TrimSpace(data.Email),
		Provider:   provider,
		ProviderID: data.ID,
		RegisterIP: "oauth",
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func fetchGitHubUser(token *oauth2.Token) (*oauthUser, error) {
	req, _ := http.NewRequest("GET", "https://api.github.com/user", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token.AccessToken))
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github user info request failed: %s", resp.Status)
	}

	var payload struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return &oauthUser{
		ID:          fmt.Sprintf("%d", payload.ID),
		Username:    payload.Login,
		DisplayName: fallback(payload.Name, payload.Login),
		Email:       payload.Email,
	}, nil
}

func fetchGoogleUser(token *oauth2.Token) (*oauthUser, error) {
	req, _ := http.NewRequest("GET", "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token.AccessToken))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google user info request failed: %s", resp.Status)
	}

	var payload struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return &oauthUser{
		ID:          payload.ID,
		Username:    payload.Name,
		DisplayName: payload.Name,
		Email:       payload.Email,
	}, nil
}

func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sanitizeUserResponse(user models.User) gin.H {
	return gin.H{
		"id":             user.ID,
		"username":       user.Username,
		"email":          user.Email,
		"provider":       user.Provider,
		"avatar_symbol":  user.AvatarSymbol,
		"goal":           user.Goal,
		"total_points":   user.TotalPoints,
		"current_streak": user.CurrentStreak,
		"longest_streak": user.LongestStreak,
		"show_completed": user.ShowCompleted,
		"joined_at":      user.CreatedAt,
	}
}
