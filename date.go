package serialdisk

import (
	"time"
)

// dosEpoch is the first representable year of FAT timestamps.
const dosEpoch = 1980

// ParseDate reads a FAT date stamp:
//
//	Bits 0–4: Day of month, 1-31.
//	Bits 5–8: Month of year, 1-12.
//	Bits 9–15: Count of years from 1980, 0-127.
//
// The result always has a time of 00:00:00 UTC.
//
// Day or month 0 are invalid, time.Time{} is returned in that case so that
// time.Time.IsZero() can be used.
func ParseDate(input uint16) time.Time {
	dayOfMonth := input & 0x1F
	monthOfYear := input & 0x1E0 >> 5
	yearSince1980 := input & 0xFE00 >> 9

	if dayOfMonth == 0 || monthOfYear == 0 {
		return time.Time{}
	}

	return time.Date(dosEpoch+int(yearSince1980), time.Month(monthOfYear), int(dayOfMonth), 0, 0, 0, 0, time.UTC)
}

// ParseTime reads a FAT time stamp with a granularity of 2 seconds:
//
//	Bits 0–4: 2-second count, 0-29.
//	Bits 5–10: Minutes, 0-59.
//	Bits 11–15: Hours, 0-23.
//
// The result always has the date January 1, year 1.
// Out of range values are clamped to 23:59:59.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x1F) * 2
	minutes := input & 0x7E0 >> 5
	hours := input & 0xF800 >> 11

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)

	if result.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}

	return result
}

// ParseTimestamp combines a FAT date and time stamp.
func ParseTimestamp(date, clock uint16) time.Time {
	d := ParseDate(date)
	if d.IsZero() {
		return time.Time{}
	}
	t := ParseTime(clock)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// FormatTimestamp encodes t as FAT date and time stamp.
// Times before 1980 are stored as 1980-01-01 00:00:00, times after 2107 as the last
// representable second.
func FormatTimestamp(t time.Time) (date, clock uint16) {
	t = t.UTC()
	switch {
	case t.Year() < dosEpoch:
		t = time.Date(dosEpoch, 1, 1, 0, 0, 0, 0, time.UTC)
	case t.Year() > dosEpoch+127:
		t = time.Date(dosEpoch+127, 12, 31, 23, 59, 58, 0, time.UTC)
	}

	date = uint16(t.Day()) | uint16(t.Month())<<5 | uint16(t.Year()-dosEpoch)<<9
	clock = uint16(t.Second()/2) | uint16(t.Minute())<<5 | uint16(t.Hour())<<11
	return date, clock
}
