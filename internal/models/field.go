package models

import (
	"time"

	"sportclub/internal/schedule"

	"gopkg.in/guregu/null.v4"
)

type Field struct {
	ID          int64     `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Address     string    `yaml:"address" json:"address"`
	Surface     string    `yaml:"surface" json:"surface"`
	Indoor      bool      `yaml:"indoor" json:"indoor"`
	Lighting    bool      `yaml:"lighting" json:"lighting"`
	IsActive    bool      `yaml:"is_active" json:"is_active"`
	Description string    `yaml:"description" json:"description"`
	CreatedAt   time.Time `yaml:"-" json:"created_at"`
	UpdatedAt   time.Time `yaml:"-" json:"updated_at"`
}

// FieldHours is one weekly hours rule. Weekday 0 is Sunday; NULL applies to days without own rules.
type FieldHours struct {
	ID        int64              `json:"id"`
	FieldID   int64              `json:"field_id"`
	Weekday   null.Int           `json:"weekday"`
	StartTime schedule.TimeOfDay `json:"start_time"`
	EndTime   schedule.TimeOfDay `json:"end_time"`
	IsActive  bool               `json:"is_active"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (h FieldHours) Rule() schedule.Rule {
	rule := schedule.Rule{Slot: schedule.Slot{Start: h.StartTime, End: h.EndTime}}
	if h.Weekday.Valid {
		wd := time.Weekday(h.Weekday.Int64)
		rule.Weekday = &wd
	}
	return rule
}

// FieldClosure closes a field for a whole day.
type FieldClosure struct {
	ID        int64       `json:"id"`
	FieldID   int64       `json:"field_id"`
	Date      string      `json:"date"`
	Reason    null.String `json:"reason"`
	CreatedAt time.Time   `json:"created_at"`
}
