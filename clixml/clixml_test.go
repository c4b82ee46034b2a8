package clixml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionRoundTrip(t *testing.T) {
	cases := []string{"2.3", "2.3.1", "2.3.1.0", "0.1"}
	for _, s := range cases {
		v, err := ParseVersion(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, v.String(), s)
	}
}

func TestVersionRejectsLeadingZero(t *testing.T) {
	_, err := ParseVersion("2.03")
	assert.Error(t, err)
}

func TestDurationRoundTrip(t *testing.T) {
	cases := []Duration{
		{Ticks: 0},
		{Ticks: 36_000_000_000}, // 1 hour
		{Ticks: -36_000_000_000},
		{Ticks: 86400*10_000_000 + 1234567},
	}
	for _, d := range cases {
		s := d.String()
		parsed, err := ParseDuration(s)
		require.NoError(t, err, s)
		assert.Equal(t, d.Ticks, parsed.Ticks, s)
	}
}

func TestDateTimeRoundTrip(t *testing.T) {
	dt := NewDateTime(time.Date(2024, 3, 14, 9, 26, 53, 589793200, time.UTC))
	s := dt.String()
	parsed, err := ParseDateTime(s)
	require.NoError(t, err)
	assert.True(t, dt.Time.Equal(parsed.Time))
	assert.Equal(t, dt.Time.Nanosecond(), parsed.Time.Nanosecond())
}

func TestNewCharRange(t *testing.T) {
	_, err := NewChar(0x10000)
	assert.Error(t, err)

	c, err := NewChar(0xD800) // lone surrogate half, still valid per .NET
	require.NoError(t, err)
	assert.Equal(t, Char(0xD800), c)
}

func TestGUIDRoundTrip(t *testing.T) {
	g, err := ParseGUID("3f2504e0-4f89-11d3-9a0c-0305e82c3301")
	require.NoError(t, err)
	assert.Equal(t, "3f2504e0-4f89-11d3-9a0c-0305e82c3301", g.String())
}

func TestPropertyBagOrderPreserved(t *testing.T) {
	var bag PropertyBag
	bag.Set("b", String("2"))
	bag.Set("a", String("1"))
	bag.Set("b", String("2-updated"))

	names := make([]string, 0, bag.Len())
	for _, p := range bag.All() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"b", "a"}, names)

	v, ok := bag.Get("b")
	require.True(t, ok)
	assert.Equal(t, String("2-updated"), v)
}
