package domain

import "time"

// Profile status values. IsConnected may only be true while Status is
// ProfileConnected; any other combination is corrected by reconciliation.
const (
	ProfileDisconnected = "disconnected"
	ProfileConnecting   = "connecting"
	ProfileConnected    = "connected"
	ProfileError        = "error"
)

// Profile is one operator-managed WhatsApp-backed identity. Status and
// IsConnected are written exclusively through the connection state machine.
type Profile struct {
	ID                 int64      `json:"id,string" form:"id"`
	ClientID           string     `json:"client_id" form:"client_id" gorm:"uniqueIndex;size:64"` // opaque credential key addressing the automation client store
	Name               string     `json:"name" form:"name"`
	PhoneNumber        string     `json:"phone_number" form:"phone_number"`
	Status             string     `json:"status" form:"status"`
	IsConnected        bool       `json:"is_connected" form:"is_connected"`
	AvatarURL          string     `json:"avatar_url"`
	LastConnectedAt    *time.Time `json:"last_connected_at"`
	LastDisconnectedAt *time.Time `json:"last_disconnected_at"`
	Remark             string     `json:"remark" form:"remark"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName Specify table name
func (Profile) TableName() string {
	return "wa_profile"
}
