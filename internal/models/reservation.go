package models

import (
	"time"

	"sportclub/internal/schedule"

	"gopkg.in/guregu/null.v4"
)

type Reservation struct {
	ID           int64              `json:"id"`
	FieldID      int64              `json:"field_id"`
	UserID       null.Int           `json:"user_id"`
	TeamID       null.Int           `json:"team_id"`
	Date         string             `json:"date"` // YYYY-MM-DD
	StartTime    schedule.TimeOfDay `json:"start_time"`
	EndTime      schedule.TimeOfDay `json:"end_time"`
	ActivityType null.String        `json:"activity_type"`
	Note         null.String        `json:"note"`
	Status       string             `json:"status"` // pending, confirmed, rejected, expired, cancelled
	CancelledBy  null.String        `json:"cancelled_by"`
	ReminderSent bool               `json:"reminder_sent"`
	Version      int64              `json:"version"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (r Reservation) Interval() schedule.Slot {
	return schedule.Slot{Start: r.StartTime, End: r.EndTime}
}

func (r Reservation) IsBlocking() bool {
	return IsBlockingStatus(r.Status)
}

// StartsAt combines the reservation date and start time in loc.
func (r Reservation) StartsAt(loc *time.Location) (time.Time, error) {
	return AtTimeOfDay(r.Date, r.StartTime, loc)
}

// EndsAt combines the reservation date and end time in loc.
func (r Reservation) EndsAt(loc *time.Location) (time.Time, error) {
	return AtTimeOfDay(r.Date, r.EndTime, loc)
}

// AtTimeOfDay builds the instant of a club-local date and time.
func AtTimeOfDay(date string, t schedule.TimeOfDay, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(t) * time.Minute), nil
}

// BookingRequest carries what a caller provides to book a field.
type BookingRequest struct {
	FieldID      int64       `json:"field_id"`
	Date         string      `json:"date"`
	StartTime    string      `json:"start_time"`
	EndTime      string      `json:"end_time"`
	UserID       null.Int    `json:"user_id"`
	TeamID       null.Int    `json:"team_id"`
	ActivityType null.String `json:"activity_type"`
	Note         null.String `json:"note"`
}

// BookingResult is the outcome of an admission attempt. Reason is set when OK is false.
type BookingResult struct {
	OK          bool         `json:"ok"`
	Reservation *Reservation `json:"reservation,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

// ReasonSlotTaken is reported when the interval overlaps a blocking reservation.
const ReasonSlotTaken = "slot_taken"

func IsBlockingStatus(status string) bool {
	return status == StatusPending || status == StatusConfirmed
}

func IsValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}
