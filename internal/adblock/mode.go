// Package adblock blocks ad and tracker requests for a browser context using
// filter-list rules compiled once per mode and shared process-wide.
package adblock

import (
	"errors"
	"fmt"
)

type Mode string

const (
	ModeNone           Mode = "none"
	ModeAdsOnly        Mode = "ads_only"
	ModeAdsAndTracking Mode = "ads_and_tracking"
)

var ErrUnknownMode = errors.New("unknown ad blocking mode")

// ParseMode validates s. The empty string is treated as ModeNone.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeNone:
		return ModeNone, nil
	case ModeAdsOnly, ModeAdsAndTracking:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// DefaultLists are the public filter lists used for each mode.
var DefaultLists = map[Mode][]string{
	ModeAdsOnly: {
		"https://easylist.to/easylist/easylist.txt",
	},
	ModeAdsAndTracking: {
		"https://easylist.to/easylist/easylist.txt",
		"https://easylist.to/easylist/easyprivacy.txt",
	},
}
