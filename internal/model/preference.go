package model

import "time"

// Preference 是某个浏览器客户端的持久化偏好。
type Preference struct {
	Language               string    `json:"language"`
	DisclaimerAcknowledged bool      `json:"disclaimer_acknowledged"`
	UpdatedAt              time.Time `json:"updated_at"`
}
