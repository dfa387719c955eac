package models

import "time"

type Photo struct {
	ID        string
	EventID   string
	URL       string
	PublicID  string
	Width     int
	Height    int
	Creator   string
	DeviceID  *string
	CreatedAt time.Time
}
