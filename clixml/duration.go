package clixml

import (
	"fmt"
	"strconv"
	"strings"
)

// Duration is .NET's System.TimeSpan, carried in 100-nanosecond ticks to
// match the wire's tick resolution (time.Duration's nanosecond resolution
// cannot represent TimeSpan's ~29247-year range losslessly once you start
// subdividing below 100ns, and the wire never carries sub-tick precision
// anyway).
type Duration struct {
	// Ticks is the number of 100-nanosecond intervals. Negative values
	// represent negative durations.
	Ticks int64
}

const ticksPerSecond = 10_000_000

// NewDurationFromNanoseconds builds a Duration from a nanosecond count,
// truncating to the nearest 100ns tick (matching .NET TimeSpan semantics).
func NewDurationFromNanoseconds(ns int64) Duration {
	return Duration{Ticks: ns / 100}
}

// Nanoseconds returns the duration in nanoseconds. Durations whose tick
// count does not fit in an int64 nanosecond count overflow silently, same
// as casting any oversized TimeSpan to time.Duration would.
func (d Duration) Nanoseconds() int64 { return d.Ticks * 100 }

// String renders the wire form: "P[d.]hh:mm:ss[.fffffff]" per
// [MS-PSRP] §2.2.5.1.5, e.g. "P3DT1H5M0.1234567S" is NOT used — PSRP's
// format is the .NET TimeSpan text form "[-][d.]hh:mm:ss[.fffffff]"
// preceded by nothing (no leading "P"); this module follows pypsrp's
// behavior of emitting that TimeSpan text form directly.
func (d Duration) String() string {
	neg := d.Ticks < 0
	ticks := d.Ticks
	if neg {
		ticks = -ticks
	}

	days := ticks / (ticksPerSecond * 86400)
	rem := ticks % (ticksPerSecond * 86400)
	hours := rem / (ticksPerSecond * 3600)
	rem %= ticksPerSecond * 3600
	minutes := rem / (ticksPerSecond * 60)
	rem %= ticksPerSecond * 60
	seconds := rem / ticksPerSecond
	fractional := rem % ticksPerSecond

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if days > 0 {
		fmt.Fprintf(&b, "%d.", days)
	}
	fmt.Fprintf(&b, "%02d:%02d:%02d", hours, minutes, seconds)
	if fractional > 0 {
		fmt.Fprintf(&b, ".%07d", fractional)
	}
	return b.String()
}

// ParseDuration parses the TimeSpan text form produced by String.
func ParseDuration(s string) (Duration, error) {
	orig := s
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	var days int64
	if idx := strings.Index(s, "."); idx >= 0 && strings.Count(s, ":") >= 2 && idx < strings.Index(s, ":") {
		d, err := strconv.ParseInt(s[:idx], 10, 64)
		if err != nil {
			return Duration{}, &FormatError{Type: "Duration", Reason: "bad day component in " + orig}
		}
		days = d
		s = s[idx+1:]
	}

	hmsAndFrac := strings.SplitN(s, ".", 2)
	hms := strings.Split(hmsAndFrac[0], ":")
	if len(hms) != 3 {
		return Duration{}, &FormatError{Type: "Duration", Reason: "expected hh:mm:ss in " + orig}
	}
	hours, err := strconv.ParseInt(hms[0], 10, 64)
	if err != nil {
		return Duration{}, &FormatError{Type: "Duration", Reason: "bad hours in " + orig}
	}
	minutes, err := strconv.ParseInt(hms[1], 10, 64)
	if err != nil {
		return Duration{}, &FormatError{Type: "Duration", Reason: "bad minutes in " + orig}
	}
	seconds, err := strconv.ParseInt(hms[2], 10, 64)
	if err != nil {
		return Duration{}, &FormatError{Type: "Duration", Reason: "bad seconds in " + orig}
	}

	var fractional int64
	if len(hmsAndFrac) == 2 {
		digits := hmsAndFrac[1]
		for len(digits) < 7 {
			digits += "0"
		}
		digits = digits[:7]
		f, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return Duration{}, &FormatError{Type: "Duration", Reason: "bad fractional seconds in " + orig}
		}
		fractional = f
	}

	ticks := days*86400*ticksPerSecond + hours*3600*ticksPerSecond + minutes*60*ticksPerSecond + seconds*ticksPerSecond + fractional
	if neg {
		ticks = -ticks
	}
	return Duration{Ticks: ticks}, nil
}
