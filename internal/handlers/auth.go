package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"queuemedix-server/internal/apperrors"
	"queuemedix-server/internal/config"
	"queuemedix-server/internal/middleware"
	"queuemedix-server/internal/models"
	"queuemedix-server/internal/utils"
)

const refreshCookie = "refresh_token"

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	DB  *gorm.DB
	Cfg *config.Config
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{DB: db, Cfg: cfg}
}

// RegisterRequest represents the request body for user registration.
// Doctor-only fields are ignored for other roles.
type RegisterRequest struct {
	FirstName         string  `json:"firstName" binding:"required"`
	LastName          string  `json:"lastName" binding:"required"`
	Email             string  `json:"email" binding:"required,email"`
	Password          string  `json:"password" binding:"required,min=8"`
	Role              string  `json:"role" binding:"required,oneof=patient doctor hospital_admin"`
	PhoneNumber       string  `json:"phoneNumber"`
	HospitalCardID    string  `json:"hospitalCardId"`
	HospitalID        *string `json:"hospitalId"`
	DepartmentID      *string `json:"departmentId"`
	Specialization    string  `json:"specialization"`
	YearsOfExperience int     `json:"yearsOfExperience" binding:"gte=0"`
}

// Register handles user registration. Patients and doctors get their profile row in the
// same transaction as the user.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user := models.User{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Role:        models.Role(req.Role),
		PhoneNumber: req.PhoneNumber,
		IsActive:    true,
	}
	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password")
		return
	}

	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.User{}).Where("email = ?", req.Email).Count(&existing).Error; err != nil {
			return apperrors.Internal("check email", err)
		}
		if existing > 0 {
			return apperrors.New(apperrors.KindConflict, "user with this email already exists")
		}

		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.New(apperrors.KindConflict, "user with this email already exists")
			}
			return apperrors.Internal("create user", err)
		}

		switch user.Role {
		case models.RolePatient:
			patient := models.Patient{UserID: user.ID, HospitalCardID: req.HospitalCardID}
			if err := tx.Omit("User").Create(&patient).Error; err != nil {
				return apperrors.Internal("create patient profile", err)
			}
		case models.RoleDoctor:
			doctor := models.Doctor{
				UserID:            user.ID,
				HospitalID:        req.HospitalID,
				DepartmentID:      req.DepartmentID,
				Specialization:    req.Specialization,
				YearsOfExperience: req.YearsOfExperience,
				IsAvailable:       true,
			}
			if err := tx.Omit("User").Create(&doctor).Error; err != nil {
				return apperrors.Internal("create doctor profile", err)
			}
		}
		return nil
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	utils.Created(c, "User registered successfully", user.Sanitize())
}

// LoginRequest represents the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response body for successful login.
type LoginResponse struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	User         models.UserSanitized `json:"user"`
}

// Login handles user login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Invalid email or password")
		} else {
			utils.RespondError(c, apperrors.Internal("load user", err))
		}
		return
	}

	if !user.IsActive || !user.CheckPassword(req.Password) {
		utils.Unauthorized(c, "Invalid email or password")
		return
	}

	accessToken, refreshToken, err := h.issueTokens(h.DB, &user)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	h.setRefreshCookie(c, refreshToken, h.Cfg.JWTRefreshExpirationHours*60*60)

	utils.Success(c, "Login successful", LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Sanitize(),
	})
}

// RefreshTokenRequest represents the request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshTokenResponse represents the response body for successful token refresh.
type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken rotates a refresh token: the presented token is revoked and a new pair is
// issued. The cookie wins over the request body.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	presented, err := c.Cookie(refreshCookie)
	if err != nil || presented == "" {
		var req RefreshTokenRequest
		if !utils.BindAndValidate(c, &req) {
			return
		}
		presented = req.RefreshToken
	}

	claims, err := utils.ValidateToken(presented, h.Cfg.JWTRefreshSecret)
	if err != nil {
		utils.Unauthorized(c, "Invalid refresh token: "+err.Error())
		return
	}

	var accessToken, refreshToken string
	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var stored models.RefreshToken
		if err := tx.Where("token = ? AND user_id = ?", presented, claims.UserID).First(&stored).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.KindForbidden, "refresh token not found")
			}
			return apperrors.Internal("load refresh token", err)
		}
		if !stored.Usable(time.Now()) {
			return apperrors.New(apperrors.KindForbidden, "refresh token expired or revoked")
		}

		// Only one concurrent rotation of the same token may win.
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND is_revoked = ?", stored.ID, false).
			Update("is_revoked", true)
		if res.Error != nil {
			return apperrors.Internal("revoke refresh token", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.New(apperrors.KindForbidden, "refresh token expired or revoked")
		}

		var user models.User
		if err := tx.First(&user, "id = ?", claims.UserID).Error; err != nil {
			return apperrors.Internal("load token owner", err)
		}

		var issueErr error
		accessToken, refreshToken, issueErr = h.issueTokens(tx, &user)
		return issueErr
	})
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindForbidden {
			utils.Unauthorized(c, err.Error())
			return
		}
		utils.RespondError(c, err)
		return
	}

	h.setRefreshCookie(c, refreshToken, h.Cfg.JWTRefreshExpirationHours*60*60)
	utils.Success(c, "Access token refreshed successfully", RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// LogoutRequest represents the request body for user logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Logout revokes the refresh token. Unknown or already revoked tokens still log out.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	err := h.DB.Model(&models.RefreshToken{}).
		Where("token = ? AND is_revoked = ?", req.RefreshToken, false).
		Updates(map[string]interface{}{"is_revoked": true, "expires_at": time.Now().UTC()}).Error
	if err != nil {
		utils.RespondError(c, apperrors.Internal("revoke refresh token", err))
		return
	}

	h.setRefreshCookie(c, "", -1)
	utils.Success(c, "Logout successful. Refresh token has been invalidated.", nil)
}

// ProfileResponse is the authenticated user with the role-specific profile attached.
type ProfileResponse struct {
	User    models.UserSanitized `json:"user"`
	Patient *models.Patient      `json:"patient,omitempty"`
	Doctor  *models.Doctor       `json:"doctor,omitempty"`
}

// GetProfile handles fetching the currently authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User profile not found")
		} else {
			utils.RespondError(c, apperrors.Internal("load user", err))
		}
		return
	}

	resp := ProfileResponse{User: user.Sanitize()}
	switch user.Role {
	case models.RolePatient:
		var patient models.Patient
		if err := h.DB.First(&patient, "user_id = ?", user.ID).Error; err == nil {
			resp.Patient = &patient
		}
	case models.RoleDoctor:
		var doctor models.Doctor
		if err := h.DB.First(&doctor, "user_id = ?", user.ID).Error; err == nil {
			resp.Doctor = &doctor
		}
	}

	utils.Success(c, "Profile fetched successfully", resp)
}

// UpdateProfileRequest represents the request body for updating user profile.
type UpdateProfileRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	Address     string `json:"address"`
}

// UpdateProfile handles updating the currently authenticated user's profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var req UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		utils.NotFound(c, "User not found")
		return
	}

	updates := map[string]interface{}{}
	if req.FirstName != "" {
		updates["first_name"] = req.FirstName
	}
	if req.LastName != "" {
		updates["last_name"] = req.LastName
	}
	if req.PhoneNumber != "" {
		updates["phone_number"] = req.PhoneNumber
	}
	if req.Address != "" {
		updates["address"] = req.Address
	}
	if len(updates) > 0 {
		if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
			utils.RespondError(c, apperrors.Internal("update profile", err))
			return
		}
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}

func (h *AuthHandler) issueTokens(db *gorm.DB, user *models.User) (string, string, error) {
	accessToken, refreshToken, err := utils.GenerateTokens(user, h.Cfg)
	if err != nil {
		return "", "", apperrors.Internal("generate tokens", err)
	}

	stored := models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: utils.RefreshExpiry(h.Cfg, time.Now().UTC()),
	}
	if err := db.Omit("User").Create(&stored).Error; err != nil {
		return "", "", apperrors.Internal("store refresh token", err)
	}
	return accessToken, refreshToken, nil
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetCookie(refreshCookie, value, maxAge, "/", "", h.Cfg.Environment != "development", true)
}
