package models

import (
	"time"

	"github.com/lib/pq"
)

// DefaultWeekdayMask enables Monday through Friday.
const DefaultWeekdayMask = "1111100"

// QueueConfig holds the posting schedule for one social account within an
// organization. Weekday bits are Monday-first: index 0 = Monday, 6 = Sunday.
type QueueConfig struct {
	ID              string         `db:"id" json:"id"`
	OrgID           string         `db:"org_id" json:"org_id"`
	SocialAccountID string         `db:"social_account_id" json:"social_account_id"`
	WeekdaysEnabled string         `db:"weekdays_enabled" json:"weekdays_enabled"`
	TimeSlots       pq.StringArray `db:"time_slots" json:"time_slots"`
	Timezone        string         `db:"timezone" json:"timezone"`
	IsActive        bool           `db:"is_active" json:"is_active"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// WeekdayEnabled reports whether the Monday-indexed weekday bit is set.
func (q *QueueConfig) WeekdayEnabled(index int) bool {
	if index < 0 || index >= len(q.WeekdaysEnabled) {
		return false
	}
	return q.WeekdaysEnabled[index] == '1'
}

// QueuedPost is a content item assigned to a concrete slot on a queue.
type QueuedPost struct {
	ID              string    `db:"id" json:"id"`
	OrgID           string    `db:"org_id" json:"org_id"`
	PostID          string    `db:"post_id" json:"post_id"`
	SocialAccountID string    `db:"social_account_id" json:"social_account_id"`
	ScheduledFor    time.Time `db:"scheduled_for" json:"scheduled_for"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Queued post lifecycle states.
const (
	QueuedPostStatusQueued      = "QUEUED"
	QueuedPostStatusDispatching = "DISPATCHING"
	QueuedPostStatusPublished   = "PUBLISHED"
	QueuedPostStatusFailed      = "FAILED"
)

// QueueStatistics aggregates queue density for an account.
type QueueStatistics struct {
	TotalQueued       int        `json:"total_queued"`
	Next7Days         int        `json:"next_7_days"`
	Next30Days        int        `json:"next_30_days"`
	AverageGapSeconds float64    `json:"average_gap_seconds"`
	NextScheduledFor  *time.Time `json:"next_scheduled_for,omitempty"`
	GeneratedAt       time.Time  `json:"generated_at"`
}

// NextSlotResult is the payload returned by the next-slot endpoint.
type NextSlotResult struct {
	NextSlot time.Time `json:"next_slot"`
	Timezone string    `json:"timezone"`
}

// PublishRecord captures the outcome of a publisher dispatch for a queued post.
type PublishRecord struct {
	ID              string    `db:"id" json:"id"`
	QueuedPostID    string    `db:"queued_post_id" json:"queued_post_id"`
	SocialAccountID string    `db:"social_account_id" json:"social_account_id"`
	Status          string    `db:"status" json:"status"`
	Detail          string    `db:"detail" json:"detail,omitempty"`
	PublishedAt     time.Time `db:"published_at" json:"published_at"`
}
