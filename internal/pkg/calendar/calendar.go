package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultZone is the zone quota days are counted in.
const DefaultZone = "Asia/Seoul"

const dateKeyLayout = "2006-01-02"

// Zone computes day boundaries in one fixed location, never the client's.
type Zone struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Zone for an IANA name or a "+09:00" style offset.
func New(name string) (*Zone, error) {
	loc, err := ParseLocation(name)
	if err != nil {
		return nil, err
	}
	return &Zone{loc: loc, now: time.Now}, nil
}

// MustNew is New for constants known to be valid.
func MustNew(name string) *Zone {
	z, err := New(name)
	if err != nil {
		panic(err)
	}
	return z
}

// WithClock replaces the server clock. Used by tests.
func (z *Zone) WithClock(now func() time.Time) *Zone {
	return &Zone{loc: z.loc, now: now}
}

func (z *Zone) Location() *time.Location { return z.loc }

// Now returns the current instant in the zone.
func (z *Zone) Now() time.Time { return z.now().In(z.loc) }

// DateKey returns the YYYY-MM-DD day of t in the zone.
func (z *Zone) DateKey(t time.Time) string {
	return t.In(z.loc).Format(dateKeyLayout)
}

// Today is DateKey of the current instant.
func (z *Zone) Today() string { return z.DateKey(z.now()) }

// NextMidnight returns the start of the day after t in the zone.
func (z *Zone) NextMidnight(t time.Time) time.Time {
	local := t.In(z.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, z.loc)
}

// UntilMidnight is the time left in the current day, never negative.
func (z *Zone) UntilMidnight(t time.Time) time.Duration {
	d := z.NextMidnight(t).Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// ParseLocation accepts an IANA zone name or a UTC offset such as +09:00.
func ParseLocation(raw string) (*time.Location, error) {
	tz := strings.TrimSpace(raw)
	if tz == "" {
		tz = DefaultZone
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc, nil
	}
	if len(tz) == 6 && (tz[0] == '+' || tz[0] == '-') && tz[3] == ':' {
		h, errH := strconv.Atoi(tz[1:3])
		m, errM := strconv.Atoi(tz[4:6])
		if errH == nil && errM == nil && h <= 23 && m <= 59 {
			offset := h*3600 + m*60
			if tz[0] == '-' {
				offset = -offset
			}
			return time.FixedZone(tz, offset), nil
		}
	}
	return nil, fmt.Errorf("invalid timezone %q: expect IANA zone (e.g. Asia/Seoul) or UTC offset (e.g. +09:00)", raw)
}
