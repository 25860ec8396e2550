package models

import (
	"time"
)

const (
	OfferTypeSweepstakes  = "sweepstakes"
	OfferTypeSurvey       = "survey"
	OfferTypeDownload     = "download"
	OfferTypeSubscription = "subscription"
	OfferTypeCustom       = "custom"

	OfferStatusActive   = "active"
	OfferStatusInactive = "inactive"
	OfferStatusPaused   = "paused"
)

type Offer struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string    `gorm:"column:title;size:255;not null" json:"title"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	Type        string    `gorm:"column:type;size:20;default:custom" json:"type"`
	Payout      float64   `gorm:"column:payout;type:decimal(10,2);default:0.00" json:"payout"`
	Status      string    `gorm:"column:status;size:20;default:active;index" json:"status"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Offer) TableName() string {
	return "offers"
}

func (o Offer) IsActive() bool {
	return o.Status == OfferStatusActive
}
