package domain

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const microsPerSecond = 1_000_000

// Timestamp is a Ganeti (seconds, microseconds) timestamp. The zero value
// is an absent timestamp and encodes as JSON null.
type Timestamp struct {
	Sec   int64
	Usec  int64
	Valid bool
}

// NewTimestamp returns a valid timestamp, normalizing usec into [0, 1e6).
func NewTimestamp(sec, usec int64) Timestamp {
	sec += usec / microsPerSecond
	usec %= microsPerSecond
	if usec < 0 {
		usec += microsPerSecond
		sec--
	}
	return Timestamp{Sec: sec, Usec: usec, Valid: true}
}

// FromMicros builds a timestamp from a count of microseconds since the epoch.
func FromMicros(micros int64) Timestamp {
	return NewTimestamp(0, micros)
}

// Micros returns the timestamp as microseconds since the epoch.
func (t Timestamp) Micros() int64 {
	return t.Sec*microsPerSecond + t.Usec
}

// Time converts the timestamp to a time.Time. Absent timestamps give the
// zero time.
func (t Timestamp) Time() time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return time.Unix(t.Sec, t.Usec*int64(time.Microsecond))
}

// String renders the timestamp as decimal seconds, e.g. "1000" or "1000.5".
// Absent timestamps render as "null".
func (t Timestamp) String() string {
	if !t.Valid {
		return "null"
	}

	micros := t.Micros()
	sign := ""
	if micros < 0 {
		sign = "-"
		micros = -micros
	}

	whole := micros / microsPerSecond
	frac := micros % microsPerSecond
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}

	fraction := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return sign + strconv.FormatInt(whole, 10) + "." + fraction
}

// MarshalJSON encodes the timestamp as an exact JSON number or null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalJSON accepts a JSON number of seconds or null. The number text
// is parsed exactly; precision below one microsecond is truncated.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	ts, err := ParseSeconds(string(data))
	if err != nil {
		return err
	}
	*t = ts
	return nil
}

// ParseSeconds parses a decimal number of seconds, such as "1000.25" or
// "1.5e3", into a timestamp without going through floating point.
func ParseSeconds(s string) (Timestamp, error) {
	if s == "" || s[0] == '"' {
		return Timestamp{}, fmt.Errorf("timestamp %s is not a number", s)
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
	}

	r.Mul(r, big.NewRat(microsPerSecond, 1))
	micros := new(big.Int).Quo(r.Num(), r.Denom())
	if !micros.IsInt64() {
		return Timestamp{}, fmt.Errorf("timestamp %q out of range", s)
	}

	return FromMicros(micros.Int64()), nil
}
