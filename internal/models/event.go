package models

import "time"

type Event struct {
	ID               string
	Code             string
	Title            string
	MaxPhotos        int
	MaxPhotosPerUser *int
	UsedPhotos       int
	ExpiresAt        time.Time
	AllowedFilters   []string
	CreatedByID      *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (e Event) OwnedBy(userID string) bool {
	return e.CreatedByID != nil && *e.CreatedByID == userID
}

func (e Event) Remaining() int {
	if left := e.MaxPhotos - e.UsedPhotos; left > 0 {
		return left
	}
	return 0
}
