package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/m04kA/SMC-ReservationService/pkg/types"
)

// TimeSlot represents one unit of requested occupancy: a date plus a
// start/end time range (hour granularity in practice, minute precision here).
type TimeSlot struct {
	Date      string           `json:"date"`      // "2025-07-01"
	StartTime types.TimeString `json:"startTime"` // "10:00"
	EndTime   types.TimeString `json:"endTime"`   // "12:00"
}

// IsValid reports whether the slot is well-formed: parsable date, parsable
// times and a non-empty [start, end) range. Malformed and zero-length slots
// are treated as never conflicting by the conflict engine, so validation is
// the caller's responsibility.
func (s TimeSlot) IsValid() bool {
	if _, err := time.Parse(DateFormat, s.Date); err != nil {
		return false
	}
	if s.StartTime.Validate() != nil || s.EndTime.Validate() != nil {
		return false
	}
	return s.StartTime.IsBefore(s.EndTime)
}

// DateValue parses the slot date in the given location
func (s TimeSlot) DateValue(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateFormat, s.Date, loc)
}

// IsPast reports whether the slot has fully elapsed relative to now in the
// given location: the date is before today, or the date is today and the end
// time has already passed.
func (s TimeSlot) IsPast(now time.Time, loc *time.Location) bool {
	date, err := s.DateValue(loc)
	if err != nil {
		return false
	}
	nowLocal := now.In(loc)
	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, loc)

	if date.Before(today) {
		return true
	}
	if !date.Equal(today) {
		return false
	}
	nowTime := types.NewTimeString(nowLocal)
	return s.EndTime.IsBefore(nowTime) || s.EndTime == nowTime
}

// TimeSlots is an ordered sequence of slots, stored as a JSONB column
type TimeSlots []TimeSlot

// Value implements driver.Valuer
func (s TimeSlots) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *TimeSlots) Scan(src interface{}) error {
	if src == nil {
		*s = TimeSlots{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("domain: cannot scan %T into TimeSlots", src)
	}
	return json.Unmarshal(data, s)
}

// DateRange returns the min/max slot dates as check-in/check-out values.
// The third result is false when the slice is empty or no date parses.
func (s TimeSlots) DateRange(loc *time.Location) (checkIn, checkOut time.Time, ok bool) {
	for _, slot := range s {
		date, err := slot.DateValue(loc)
		if err != nil {
			continue
		}
		if !ok {
			checkIn, checkOut = date, date
			ok = true
			continue
		}
		if date.Before(checkIn) {
			checkIn = date
		}
		if date.After(checkOut) {
			checkOut = date
		}
	}
	return checkIn, checkOut, ok
}

// AllPast reports whether every slot in the sequence has fully elapsed
func (s TimeSlots) AllPast(now time.Time, loc *time.Location) bool {
	if len(s) == 0 {
		return false
	}
	for _, slot := range s {
		if !slot.IsPast(now, loc) {
			return false
		}
	}
	return true
}
