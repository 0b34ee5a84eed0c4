package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/smallbiznis/perkway/internal/config"
)

type settingsPayload struct {
	PointsEnabled       bool   `json:"points_enabled"`
	AutoEnroll          bool   `json:"auto_enroll"`
	PointValue          string `json:"point_value"`
	MinimumRedemption   int64  `json:"minimum_redemption"`
	PointsExpiryDays    int    `json:"points_expiry_days"`
	TiersEnabled        bool   `json:"tiers_enabled"`
	ReferralEnabled     bool   `json:"referral_enabled"`
	ReferrerBonusPoints int64  `json:"referrer_bonus_points"`
	ReferredBonusPoints int64  `json:"referred_bonus_points"`
}

func settingsToPayload(s config.LoyaltySettings) settingsPayload {
	return settingsPayload{
		PointsEnabled:       s.PointsEnabled,
		AutoEnroll:          s.AutoEnroll,
		PointValue:          s.PointValue.String(),
		MinimumRedemption:   s.MinimumRedemption,
		PointsExpiryDays:    s.PointsExpiryDays,
		TiersEnabled:        s.TiersEnabled,
		ReferralEnabled:     s.ReferralEnabled,
		ReferrerBonusPoints: s.ReferrerBonusPoints,
		ReferredBonusPoints: s.ReferredBonusPoints,
	}
}

func (s *Server) registerSettingsRoutes(r *gin.RouterGroup) {
	g := r.Group("/loyalty/settings")
	g.GET("", s.getSettings)
	g.PUT("", s.updateSettings)
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, settingsToPayload(s.settings.Current()))
}

func (s *Server) updateSettings(c *gin.Context) {
	var payload settingsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_settings"})
		return
	}

	pointValue, err := decimal.NewFromString(payload.PointValue)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_point_value"})
		return
	}

	settings := config.LoyaltySettings{
		PointsEnabled:       payload.PointsEnabled,
		AutoEnroll:          payload.AutoEnroll,
		PointValue:          pointValue,
		MinimumRedemption:   payload.MinimumRedemption,
		PointsExpiryDays:    payload.PointsExpiryDays,
		TiersEnabled:        payload.TiersEnabled,
		ReferralEnabled:     payload.ReferralEnabled,
		ReferrerBonusPoints: payload.ReferrerBonusPoints,
		ReferredBonusPoints: payload.ReferredBonusPoints,
	}
	if err := s.settings.Store(settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settingsToPayload(settings))
}
