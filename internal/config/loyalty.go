package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// LoyaltySettings is the loyalty program configuration consulted at the
// start of every loyalty operation. It is read through the holder so a
// reload never tears a half-applied settings struct.
type LoyaltySettings struct {
	PointsEnabled     bool
	AutoEnroll        bool
	PointValue        decimal.Decimal
	MinimumRedemption int64
	PointsExpiryDays  int
	TiersEnabled      bool

	ReferralEnabled     bool
	ReferrerBonusPoints int64
	ReferredBonusPoints int64
}

// settingsFile mirrors LoyaltySettings with config-file friendly types.
type settingsFile struct {
	PointsEnabled       bool   `mapstructure:"pointsEnabled"`
	AutoEnroll          bool   `mapstructure:"autoEnroll"`
	PointValue          string `mapstructure:"pointValue"`
	MinimumRedemption   int64  `mapstructure:"minimumRedemption"`
	PointsExpiryDays    int    `mapstructure:"pointsExpiryDays"`
	TiersEnabled        bool   `mapstructure:"tiersEnabled"`
	ReferralEnabled     bool   `mapstructure:"referralEnabled"`
	ReferrerBonusPoints int64  `mapstructure:"referrerBonusPoints"`
	ReferredBonusPoints int64  `mapstructure:"referredBonusPoints"`
}

func DefaultLoyaltySettings() LoyaltySettings {
	return LoyaltySettings{
		PointsEnabled:       true,
		AutoEnroll:          true,
		PointValue:          decimal.NewFromFloat(0.01),
		MinimumRedemption:   100,
		PointsExpiryDays:    365,
		TiersEnabled:        true,
		ReferralEnabled:     true,
		ReferrerBonusPoints: 500,
		ReferredBonusPoints: 250,
	}
}

// LoyaltySettingsHolder keeps the current program settings behind an
// atomic.Value and hot-reloads them from loyalty.yml.
type LoyaltySettingsHolder struct {
	current atomic.Value // holds LoyaltySettings
}

func NewLoyaltySettingsHolder() (*LoyaltySettingsHolder, error) {
	v := viper.New()

	v.SetConfigName("loyalty")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/perkway/config") // Volume-mounted config
	v.AddConfigPath("/etc/perkway")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("PERKWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	holder := &LoyaltySettingsHolder{}

	if !fileFound {
		holder.current.Store(DefaultLoyaltySettings())
		return holder, nil
	}

	settings, err := parseLoyaltySettings(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(settings)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := parseLoyaltySettings(v)
		if err != nil {
			log.Printf("[loyalty-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[loyalty-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticLoyaltySettingsHolder wraps a literal settings value; used in tests.
func NewStaticLoyaltySettingsHolder(settings LoyaltySettings) *LoyaltySettingsHolder {
	holder := &LoyaltySettingsHolder{}
	holder.current.Store(settings)
	return holder
}

func (h *LoyaltySettingsHolder) Current() LoyaltySettings {
	return h.current.Load().(LoyaltySettings)
}

// Store replaces the current settings; used by the admin settings endpoint.
func (h *LoyaltySettingsHolder) Store(settings LoyaltySettings) error {
	if err := validateLoyaltySettings(settings); err != nil {
		return err
	}
	h.current.Store(settings)
	return nil
}

func parseLoyaltySettings(v *viper.Viper) (LoyaltySettings, error) {
	var file settingsFile
	if err := v.UnmarshalKey("loyalty", &file); err != nil {
		return LoyaltySettings{}, err
	}

	settings := DefaultLoyaltySettings()
	settings.PointsEnabled = file.PointsEnabled
	settings.AutoEnroll = file.AutoEnroll
	settings.MinimumRedemption = file.MinimumRedemption
	settings.PointsExpiryDays = file.PointsExpiryDays
	settings.TiersEnabled = file.TiersEnabled
	settings.ReferralEnabled = file.ReferralEnabled
	settings.ReferrerBonusPoints = file.ReferrerBonusPoints
	settings.ReferredBonusPoints = file.ReferredBonusPoints

	if strings.TrimSpace(file.PointValue) != "" {
		value, err := decimal.NewFromString(strings.TrimSpace(file.PointValue))
		if err != nil {
			return LoyaltySettings{}, err
		}
		settings.PointValue = value
	}

	if err := validateLoyaltySettings(settings); err != nil {
		return LoyaltySettings{}, err
	}
	return settings, nil
}

func validateLoyaltySettings(settings LoyaltySettings) error {
	if settings.PointsEnabled && !settings.PointValue.IsPositive() {
		return errors.New("loyalty.pointValue must be positive when points are enabled")
	}
	if settings.MinimumRedemption < 0 {
		return errors.New("loyalty.minimumRedemption cannot be negative")
	}
	if settings.PointsExpiryDays < 0 {
		return errors.New("loyalty.pointsExpiryDays cannot be negative")
	}
	if settings.ReferrerBonusPoints < 0 || settings.ReferredBonusPoints < 0 {
		return errors.New("loyalty referral bonuses cannot be negative")
	}
	return nil
}
