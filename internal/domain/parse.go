package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidClock   = errors.New("invalid time, expected HH:MM")
	ErrWorkerArgs     = errors.New("expected <label> <address>")
	ErrInvalidAddress = errors.New("invalid BTC address")
)

// MaxLabelLen mirrors the workers.label column size.
const MaxLabelLen = 100

// ParseClock parses "H:MM" or "HH:MM" into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) < 1 || len(parts[0]) > 2 || len(parts[1]) != 2 ||
		!allDigits(parts[0]) || !allDigits(parts[1]) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: hour out of range", ErrInvalidClock)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: minute out of range", ErrInvalidClock)
	}
	return hour, minute, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatClock returns HH:MM.
func FormatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// ParseWorkerArgs splits "/add_worker" arguments into label and address and
// validates the address.
func ParseWorkerArgs(args string) (label, address string, err error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", "", ErrWorkerArgs
	}
	label, address = fields[0], fields[1]
	if len(label) > MaxLabelLen {
		return "", "", fmt.Errorf("%w: label too long", ErrWorkerArgs)
	}
	if !ValidAddress(address) {
		return "", "", ErrInvalidAddress
	}
	return label, address, nil
}

// LoadZone resolves an IANA zone name. If the tz database is unavailable the
// fixed UTC+9 zone is returned for "Asia/Tokyo".
func LoadZone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == "Asia/Tokyo" {
		return time.FixedZone("JST", 9*60*60), nil
	}
	return nil, err
}
