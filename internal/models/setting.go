package models

import (
	"time"
)

const (
	SettingDefaultPostbackURL      = "default_postback_url"
	SettingTransactionParam        = "default_transaction_param"
	SettingGoalParam               = "default_goal_param"
	SettingPayoutParam             = "default_payout_param"
	SettingTimezone                = "timezone"
	SettingCurrency                = "currency"
	SettingPostbackMethod          = "postback_method"
	SettingPostbackTimeout         = "postback_timeout"
	SettingPostbackInsecureSkipTLS = "postback_insecure_skip_verify"
)

// DefaultSettings are seeded on first run and used when a key is missing.
var DefaultSettings = map[string]string{
	SettingDefaultPostbackURL:      "https://tr.optimawall.com/pbtr",
	SettingTransactionParam:        "transaction_id",
	SettingGoalParam:               "goal",
	SettingPayoutParam:             "payout",
	SettingTimezone:                "UTC",
	SettingCurrency:                "USD",
	SettingPostbackMethod:          "GET",
	SettingPostbackTimeout:         "10",
	SettingPostbackInsecureSkipTLS: "false",
}

type Setting struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SettingKey   string    `gorm:"column:setting_key;size:100;not null;uniqueIndex" json:"setting_key"`
	SettingValue string    `gorm:"column:setting_value;type:text" json:"setting_value"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}
