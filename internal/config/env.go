package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "OLIBOX_"

// lookup returns the trimmed value of OLIBOX_<name>, or "" when unset.
func lookup(name string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + name))
}

// override parses OLIBOX_<name> into *dst; unset or unparsable values leave
// *dst untouched.
func override[T any](dst *T, name string, parse func(string) (T, error)) {
	raw := lookup(name)
	if raw == "" {
		return
	}
	if v, err := parse(raw); err == nil {
		*dst = v
	}
}

func overrideString(dst *string, name string) {
	override(dst, name, func(raw string) (string, error) { return raw, nil })
}

func overrideFloat(dst *float64, name string) {
	override(dst, name, func(raw string) (float64, error) { return strconv.ParseFloat(raw, 64) })
}

// overrideClampedInt clamps into [lo, hi] instead of rejecting.
func overrideClampedInt(dst *int, name string, lo, hi int) {
	override(dst, name, func(raw string) (int, error) {
		v, err := strconv.Atoi(raw)
		return min(max(v, lo), hi), err
	})
}

// overrideDuration accepts plain seconds ("90") or a Go duration ("1m30s").
// Non-positive values are ignored.
func overrideDuration(dst *time.Duration, name string) {
	override(dst, name, func(raw string) (time.Duration, error) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			secs, serr := strconv.Atoi(raw)
			if serr != nil {
				return 0, err
			}
			d = time.Duration(secs) * time.Second
		}
		if d <= 0 {
			return 0, strconv.ErrRange
		}
		return d, nil
	})
}
