package clixml

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateTime is .NET's System.DateTime. The wire format carries 100-nanosecond
// ticks; time.Time already gives us nanosecond precision, so values are
// truncated to the nearest 100ns on construction to match what a round trip
// through CLIXML will actually preserve.
type DateTime struct {
	Time time.Time
}

// NewDateTime truncates t to 100ns resolution and wraps it.
func NewDateTime(t time.Time) DateTime {
	ns := t.Nanosecond()
	truncated := ns - (ns % 100)
	return DateTime{Time: time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), truncated, t.Location())}
}

// String renders "yyyy-MM-ddTHH:mm:ss.fffffffK" — always 7 fractional
// digits, with "Z" for UTC or a "+hh:mm"/"-hh:mm" offset otherwise.
func (d DateTime) String() string {
	t := d.Time
	frac := t.Nanosecond() / 100 // 100ns ticks within the second
	base := t.Format("2006-01-02T15:04:05")

	var zone string
	if t.Location() == time.UTC {
		zone = "Z"
	} else {
		_, offset := t.Zone()
		sign := "+"
		if offset < 0 {
			sign = "-"
			offset = -offset
		}
		zone = fmt.Sprintf("%s%02d:%02d", sign, offset/3600, (offset%3600)/60)
	}
	return fmt.Sprintf("%s.%07d%s", base, frac, zone)
}

// ParseDateTime parses the wire form produced by String.
func ParseDateTime(s string) (DateTime, error) {
	var zoneStr string
	var loc *time.Location
	body := s
	switch {
	case strings.HasSuffix(s, "Z"):
		body = s[:len(s)-1]
		loc = time.UTC
	case len(s) > 6 && (s[len(s)-6] == '+' || s[len(s)-6] == '-'):
		zoneStr = s[len(s)-6:]
		body = s[:len(s)-6]
		sign := int64(1)
		if zoneStr[0] == '-' {
			sign = -1
		}
		hh, err := strconv.Atoi(zoneStr[1:3])
		if err != nil {
			return DateTime{}, &FormatError{Type: "DateTime", Reason: "bad zone offset in " + s}
		}
		mm, err := strconv.Atoi(zoneStr[4:6])
		if err != nil {
			return DateTime{}, &FormatError{Type: "DateTime", Reason: "bad zone offset in " + s}
		}
		offset := int(sign) * (hh*3600 + mm*60)
		loc = time.FixedZone(zoneStr, offset)
	default:
		loc = time.Local
	}

	parts := strings.SplitN(body, ".", 2)
	t, err := time.ParseInLocation("2006-01-02T15:04:05", parts[0], loc)
	if err != nil {
		return DateTime{}, &FormatError{Type: "DateTime", Reason: err.Error()}
	}
	if len(parts) == 2 {
		digits := parts[1]
		for len(digits) < 9 {
			digits += "0"
		}
		ns, err := strconv.Atoi(digits[:9])
		if err != nil {
			return DateTime{}, &FormatError{Type: "DateTime", Reason: "bad fractional seconds in " + s}
		}
		t = t.Add(time.Duration(ns) * time.Nanosecond)
	}
	return NewDateTime(t), nil
}

// SecureString is PSRP's opaque encrypted string primitive ([MS-PSRP]
// §2.2.5.1.24). Ciphertext is nil until a session key has been negotiated
// and the value has been through serialization.EncryptSecureString;
// serializing a SecureString with a nil Ciphertext is a protocol error, not
// silently skipped, because a plaintext secret must never reach the wire.
type SecureString struct {
	Ciphertext []byte
}
