package water

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// keyConstant exceeds every YYYYmmddHHMMSS value, so constant minus
	// timestamp is always a positive 14-digit number.
	keyConstant = 99999999999999

	keyPrefixWidth = 14

	// MaxKeySequence is the highest same-second disambiguator.
	MaxKeySequence = 999
)

// StorageKeyLength is the fixed width of every storage key.
const StorageKeyLength = keyPrefixWidth + 3

// timestampNumber encodes t as the integer YYYYmmddHHMMSS.
func timestampNumber(t time.Time) int64 {
	t = t.UTC()
	return int64(t.Year())*10000000000 +
		int64(t.Month())*100000000 +
		int64(t.Day())*1000000 +
		int64(t.Hour())*10000 +
		int64(t.Minute())*100 +
		int64(t.Second())
}

// StorageKey derives the key of a reading taken at t. Keys sort ascending in
// descending time order. seq disambiguates readings of one area within the
// same second; a higher seq sorts first, so later writes read as newer.
func StorageKey(t time.Time, seq uint32) string {
	reversed := keyConstant - timestampNumber(t)
	suffix := MaxKeySequence - int64(seq%(MaxKeySequence+1))
	return fmt.Sprintf("%0*d%03d", keyPrefixWidth, reversed, suffix)
}

// ParseStorageKey recovers the second-precision timestamp encoded in key.
func ParseStorageKey(key string) (time.Time, error) {
	if len(key) != StorageKeyLength {
		return time.Time{}, fmt.Errorf("storage key %q: want %d digits", key, StorageKeyLength)
	}
	reversed, err := strconv.ParseInt(key[:keyPrefixWidth], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage key %q: %w", key, err)
	}
	n := keyConstant - reversed
	sec := int(n % 100)
	n /= 100
	minute := int(n % 100)
	n /= 100
	hour := int(n % 100)
	n /= 100
	day := int(n % 100)
	n /= 100
	month := int(n % 100)
	year := int(n / 100)
	return time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC), nil
}
