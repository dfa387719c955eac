// Package rules holds the event and photo lifecycle rules. Everything here is
// pure: callers load state, pass it in, and persist the outcome.
package rules

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"snapify/internal/models"
)

const (
	DefaultFilter   = "none"
	MaxTitleLength  = 120
	MaxCreatorName  = 80
	MaxDeviceIDSize = 128
)

// PhotoPackages is the fixed set of allowed maxPhotos values.
var PhotoPackages = []int{30, 50, 75, 100, 150, 200}

var KnownFilters = []string{"none", "sepia", "grayscale", "contrast", "warm"}

var codePattern = regexp.MustCompile(`^[A-Z0-9]{4,12}$`)

func ValidMaxPhotos(n int) bool {
	return slices.Contains(PhotoPackages, n)
}

func ValidateMaxPhotos(n int) error {
	if !ValidMaxPhotos(n) {
		return invalid("maxPhotos must be one of %v", PhotoPackages)
	}
	return nil
}

func ValidatePerUserLimit(perUser *int, maxPhotos int) error {
	if perUser == nil {
		return nil
	}
	if *perUser < 1 || *perUser > maxPhotos {
		return invalid("maxPhotosPerUser must be between 1 and %d", maxPhotos)
	}
	return nil
}

// NormalizeFilters trims, lowercases and de-duplicates filter identifiers
// keeping their first-seen order. A nil slice means "not specified" and yields
// the default filter; an empty one is rejected.
func NormalizeFilters(filters []string) ([]string, error) {
	if filters == nil {
		return []string{DefaultFilter}, nil
	}
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !slices.Contains(KnownFilters, f) {
			return nil, invalid("unknown filter %q", f)
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, invalid("at least one filter must be allowed")
	}
	return out, nil
}

func NormalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title is required")
	}
	if len([]rune(title)) > MaxTitleLength {
		return "", invalid("title must be at most %d characters", MaxTitleLength)
	}
	return title, nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func ValidateCode(code string) error {
	if !codePattern.MatchString(code) {
		return invalid("code must be 4 to 12 uppercase letters or digits")
	}
	return nil
}

// CheckOwnerQuota rejects a new event once the owner already holds limit
// events. A limit of zero or less disables the check.
func CheckOwnerQuota(owned, limit int) error {
	if limit > 0 && owned >= limit {
		return ErrOwnerEventQuota
	}
	return nil
}

type NewEvent struct {
	Code             string
	Title            string
	MaxPhotos        int
	MaxPhotosPerUser *int
	ExpiresAt        time.Time
	AllowedFilters   []string
}

// ValidateNewEvent checks and normalizes creation fields. An empty Code is
// left empty for the caller to generate.
func ValidateNewEvent(in NewEvent, now time.Time) (NewEvent, error) {
	var err error
	if in.Title, err = NormalizeTitle(in.Title); err != nil {
		return NewEvent{}, err
	}
	if err := ValidateMaxPhotos(in.MaxPhotos); err != nil {
		return NewEvent{}, err
	}
	if err := ValidatePerUserLimit(in.MaxPhotosPerUser, in.MaxPhotos); err != nil {
		return NewEvent{}, err
	}
	if in.ExpiresAt.IsZero() || !in.ExpiresAt.After(now) {
		return NewEvent{}, invalid("expiresAt must be in the future")
	}
	if in.AllowedFilters, err = NormalizeFilters(in.AllowedFilters); err != nil {
		return NewEvent{}, err
	}
	if in.Code != "" {
		in.Code = NormalizeCode(in.Code)
		if err := ValidateCode(in.Code); err != nil {
			return NewEvent{}, err
		}
	}
	return in, nil
}

// EventPatch is a partial update. Nil fields are left untouched.
// ClearPerUserLimit resets maxPhotosPerUser to "same as maxPhotos".
type EventPatch struct {
	Title             *string
	ExpiresAt         *time.Time
	AllowedFilters    []string
	MaxPhotos         *int
	MaxPhotosPerUser  *int
	ClearPerUserLimit bool
}

func (p EventPatch) Empty() bool {
	return p.Title == nil && p.ExpiresAt == nil && p.AllowedFilters == nil &&
		p.MaxPhotos == nil && p.MaxPhotosPerUser == nil && !p.ClearPerUserLimit
}

// ApplyPatch merges p into event, validating the result. event is not
// modified when an error is returned.
func ApplyPatch(event models.Event, p EventPatch) (models.Event, error) {
	next := event
	if p.Title != nil {
		title, err := NormalizeTitle(*p.Title)
		if err != nil {
			return event, err
		}
		next.Title = title
	}
	if p.ExpiresAt != nil {
		if p.ExpiresAt.IsZero() {
			return event, invalid("expiresAt must be set")
		}
		next.ExpiresAt = *p.ExpiresAt
	}
	if p.AllowedFilters != nil {
		filters, err := NormalizeFilters(p.AllowedFilters)
		if err != nil {
			return event, err
		}
		next.AllowedFilters = filters
	}
	if p.MaxPhotos != nil {
		if err := ValidateMaxPhotos(*p.MaxPhotos); err != nil {
			return event, err
		}
		if *p.MaxPhotos < next.UsedPhotos {
			return event, invalid("maxPhotos cannot be lower than the %d photos already taken", next.UsedPhotos)
		}
		next.MaxPhotos = *p.MaxPhotos
	}
	if p.ClearPerUserLimit {
		next.MaxPhotosPerUser = nil
	}
	if p.MaxPhotosPerUser != nil {
		v := *p.MaxPhotosPerUser
		next.MaxPhotosPerUser = &v
	}
	if err := ValidatePerUserLimit(next.MaxPhotosPerUser, next.MaxPhotos); err != nil {
		return event, err
	}
	return next, nil
}

// CanManage reports whether a user may edit or delete event. Events created
// before ownership was recorded have no owner and are left to admins.
func CanManage(event models.Event, userID string, admin bool) bool {
	if admin {
		return true
	}
	return userID != "" && event.OwnedBy(userID)
}
