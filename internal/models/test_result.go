package models

import (
	"time"
)

// TestResult records one admin-triggered postback test.
type TestResult struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TestName     string    `gorm:"column:test_name;size:255" json:"test_name"`
	PostbackUrl  string    `gorm:"column:postback_url;type:text" json:"postback_url"`
	TestData     string    `gorm:"column:test_data;type:text" json:"test_data"`
	ResponseCode int       `gorm:"column:response_code" json:"response_code"`
	ResponseTime int64     `gorm:"column:response_time" json:"response_time"`
	Success      bool      `gorm:"column:success;default:false" json:"success"`
	ErrorMessage *string   `gorm:"column:error_message;type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (TestResult) TableName() string {
	return "test_results"
}
