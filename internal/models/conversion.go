package models

import (
	"time"
)

const (
	ConversionStatusPending   = "pending"
	ConversionStatusConverted = "converted"
	ConversionStatusFailed    = "failed"
)

// Conversion is one offer completion. Client metadata and payout are snapshots taken
// when the row is created.
type Conversion struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionId    string    `gorm:"column:transaction_id;size:100;not null;uniqueIndex" json:"transaction_id"`
	OfferId          *uint     `gorm:"column:offer_id;index" json:"offer_id"`
	Offer            *Offer    `gorm:"foreignKey:OfferId;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"offer,omitempty"`
	Name             string    `gorm:"column:name;size:255" json:"name"`
	Email            string    `gorm:"column:email;size:255" json:"email"`
	IPAddress        string    `gorm:"column:ip_address;size:45" json:"ip_address"`
	Country          string    `gorm:"column:country;size:100" json:"country"`
	City             string    `gorm:"column:city;size:100" json:"city"`
	Region           string    `gorm:"column:region;size:100" json:"region"`
	Timezone         string    `gorm:"column:timezone;size:100" json:"timezone"`
	ISP              string    `gorm:"column:isp;size:255" json:"isp"`
	Device           string    `gorm:"column:device;size:50" json:"device"`
	OS               string    `gorm:"column:os;size:50" json:"os"`
	Browser          string    `gorm:"column:browser;size:50" json:"browser"`
	ScreenResolution string    `gorm:"column:screen_resolution;size:20" json:"screen_resolution"`
	Language         string    `gorm:"column:language;size:10" json:"language"`
	UserAgent        string    `gorm:"column:user_agent;type:text" json:"user_agent"`
	Referrer         string    `gorm:"column:referrer;type:text" json:"referrer"`
	Goal             string    `gorm:"column:goal;size:100" json:"goal"`
	Payout           float64   `gorm:"column:payout;type:decimal(10,2);default:0.00" json:"payout"`
	Status           string    `gorm:"column:status;size:20;default:pending;index" json:"status"`
	PostbackSent     bool      `gorm:"column:postback_sent;default:false" json:"postback_sent"`
	PostbackResponse *string   `gorm:"column:postback_response" json:"postback_response"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (Conversion) TableName() string {
	return "conversions"
}
