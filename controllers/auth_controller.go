package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/volunteer-hub-go/config"
	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
)

// ---------------- REGISTER ----------------
func Register(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email       string `json:"email" binding:"required,email"`
			Password    string `json:"password" binding:"required,min=8,max=128"`
			DisplayName string `json:"display_name" binding:"required,notblank,max=100"`
		}
		if !bindInput(c, &input) {
			return
		}
		if !moderate(cfg, c, input.DisplayName) {
			return
		}

		hash, err := utils.HashPassword(input.Password)
		if err != nil {
			respondError(cfg, c, err, "could not create account")
			return
		}

		now := time.Now().UTC()
		user := models.User{
			ID:           primitive.NewObjectID(),
			Email:        input.Email,
			PasswordHash: hash,
			DisplayName:  strings.TrimSpace(input.DisplayName),
			Role:         models.RoleUser,
			Skills:       []string{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := cfg.Store.Users.Create(ctx, &user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
				return
			}
			respondError(cfg, c, err, "could not create account")
			return
		}

		tokens, err := cfg.Tokens.Issue(&user)
		if err != nil {
			respondError(cfg, c, err, "could not issue tokens")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user": user, "tokens": tokens})
	}
}

// ---------------- LOGIN ----------------
func Login(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if !bindInput(c, &input) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := cfg.Store.Users.GetByEmail(ctx, input.Email)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			respondError(cfg, c, err, "could not log in")
			return
		}
		if user == nil || !utils.CheckPassword(user.PasswordHash, input.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}

		tokens, err := cfg.Tokens.Issue(user)
		if err != nil {
			respondError(cfg, c, err, "could not issue tokens")
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens})
	}
}

// ---------------- REFRESH ----------------
func RefreshToken(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if !bindInput(c, &input) {
			return
		}

		claims, err := cfg.Tokens.Parse(input.RefreshToken, utils.TokenRefresh)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		userID, _ := primitive.ObjectIDFromHex(claims.Subject)

		ctx, cancel := requestContext(c)
		defer cancel()

		// the role is re-read so that promotions and demotions take effect
		user, err := cfg.Store.Users.Get(ctx, userID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": utils.ErrInvalidToken.Error()})
			return
		}

		tokens, err := cfg.Tokens.Issue(user)
		if err != nil {
			respondError(cfg, c, err, "could not issue tokens")
			return
		}
		c.JSON(http.StatusOK, tokens)
	}
}

// ---------------- OTP ----------------
const otpSentMessage = "if the account exists, a code has been sent"

func RequestOTP(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email string `json:"email" binding:"required,email"`
		}
		if !bindInput(c, &input) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := cfg.Store.Users.GetByEmail(ctx, input.Email)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				cfg.Log.Error().Err(err).Msg("otp lookup failed")
			}
			c.JSON(http.StatusOK, gin.H{"message": otpSentMessage})
			return
		}

		code, err := utils.GenerateOTP()
		if err != nil {
			respondError(cfg, c, err, "could not generate code")
			return
		}
		hash, err := utils.HashPassword(code)
		if err != nil {
			respondError(cfg, c, err, "could not generate code")
			return
		}

		expires := time.Now().UTC().Add(cfg.OTPTTL)
		if err := cfg.Store.Users.Update(ctx, user.ID, bson.M{"otp_hash": hash, "otp_expires_at": expires}); err != nil {
			respondError(cfg, c, err, "could not generate code")
			return
		}

		sendEmail(ctx, cfg, user.Email, user.DisplayName, "Your sign-in code", []string{
			"Your sign-in code is " + code + ".",
			"It expires in " + cfg.OTPTTL.String() + ". If you did not ask for it, ignore this email.",
		}, "")

		c.JSON(http.StatusOK, gin.H{"message": otpSentMessage})
	}
}

func VerifyOTP(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email string `json:"email" binding:"required,email"`
			Code  string `json:"code" binding:"required,len=6,numeric"`
		}
		if !bindInput(c, &input) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		invalid := func() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired code"})
		}

		user, err := cfg.Store.Users.GetByEmail(ctx, input.Email)
		if err != nil {
			invalid()
			return
		}
		if user.OTPHash == "" || user.OTPExpiresAt == nil || time.Now().After(*user.OTPExpiresAt) {
			invalid()
			return
		}
		if !utils.CheckPassword(user.OTPHash, input.Code) {
			invalid()
			return
		}

		// single use
		if err := cfg.Store.Users.Update(ctx, user.ID, bson.M{"otp_hash": "", "otp_expires_at": nil}); err != nil {
			respondError(cfg, c, err, "could not verify code")
			return
		}

		tokens, err := cfg.Tokens.Issue(user)
		if err != nil {
			respondError(cfg, c, err, "could not issue tokens")
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens})
	}
}
