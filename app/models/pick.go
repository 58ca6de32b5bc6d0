package models

import "time"

// PickDayFormat is the calendar-day key (UTC) used for daily pick counting.
const PickDayFormat = "2006-01-02"

// PickCounter counts picks per user per UTC calendar day. The row for a day
// is created on first use via an atomic increment-or-insert.
type PickCounter struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:ux_pick_counters_user_day,priority:1" json:"user_id"`
	Day       string    `gorm:"type:char(10);not null;uniqueIndex:ux_pick_counters_user_day,priority:2" json:"day"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Pick records which park a user drew on a given day.
type Pick struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	ParkID    uint      `gorm:"not null;index" json:"park_id"`
	Day       string    `gorm:"type:char(10);not null" json:"day"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// PickDay returns the UTC calendar-day key for the given instant.
func PickDay(now time.Time) string {
	return now.UTC().Format(PickDayFormat)
}

// NextPickReset returns the next UTC midnight after the given instant.
func NextPickReset(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
