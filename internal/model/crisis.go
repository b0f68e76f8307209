package model

import "time"

const (
	CrisisEmergencyCall = "emergency_call"
	CrisisLocationShare = "location_share"
)

type CrisisEvent struct {
	ID               int64     `json:"id"`
	UserID           string    `json:"user_id"`
	Type             string    `json:"type"`
	CenterName       string    `json:"center_name,omitempty"`
	CenterPhone      string    `json:"center_phone,omitempty"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	EmergencyContact string    `json:"emergency_contact,omitempty"`
	Acknowledged     bool      `json:"acknowledged"`
	CreatedAt        time.Time `json:"created_at"`
}
