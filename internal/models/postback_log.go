package models

import (
	"time"
)

const (
	PostbackStatusSuccess = "success"
	PostbackStatusFailed  = "failed"
	PostbackStatusTimeout = "timeout"
)

// PostbackLog is one outbound delivery attempt. Rows are append-only; TransactionId is
// not a foreign key. Unsized string columns map to longtext on MySQL.
type PostbackLog struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionId string    `gorm:"column:transaction_id;size:100;index" json:"transaction_id"`
	PostbackUrl   string    `gorm:"column:postback_url;type:text" json:"postback_url"`
	RequestData   string    `gorm:"column:request_data" json:"request_data"`
	ResponseCode  int       `gorm:"column:response_code" json:"response_code"`
	ResponseBody  *string   `gorm:"column:response_body" json:"response_body"`
	ResponseTime  int64     `gorm:"column:response_time" json:"response_time"`
	Status        string    `gorm:"column:status;size:20;default:failed;index" json:"status"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (PostbackLog) TableName() string {
	return "postback_logs"
}
