package ledger

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Key layout. One pool document per contest type and calendar date keeps
// the entry set and the running total in a single value, so the draw's
// GetDelete clears both in one step.
//
//	contest:{type}:{date}    pool document (total + entries)
//	history:{date}           settlement archive for both types
//	records:{date}           big-win feed for the date
//	checkin:{userID}:{date}  daily check-in marker
//	lock:{subject}           lock manager keyspace (see internal/lock)

var dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
var ErrInvalidDate = errors.New("ledger: invalid date, expected YYYY-MM-DD")

// ValidDate validates a calendar date string.
func ValidDate(date string) error {
	if !dateRegex.MatchString(date) {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}

// DateOf formats t as a ledger calendar date in t's location.
func DateOf(t time.Time) string {
	return t.Format("2006-01-02")
}

// PoolKey returns the document key for one contest type and date.
func PoolKey(contestType, date string) string {
	return fmt.Sprintf("contest:%s:%s", contestType, date)
}

// HistoryKey returns the archive key for a date.
func HistoryKey(date string) string {
	return fmt.Sprintf("history:%s", date)
}

// RecordsKey returns the big-win feed key for a date.
func RecordsKey(date string) string {
	return fmt.Sprintf("records:%s", date)
}

// CheckinKey returns the daily check-in marker key for a user and date.
func CheckinKey(userID int64, date string) string {
	return fmt.Sprintf("checkin:%d:%s", userID, date)
}

// PoolTTL returns how long a pool document for date may live: until
// 01:00 the following day, a few hours past the scheduled draw. A
// skipped draw therefore leaves no permanent residue.
func PoolTTL(date string, now time.Time) (time.Duration, error) {
	day, err := time.ParseInLocation("2006-01-02", date, now.Location())
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	expiry := day.AddDate(0, 0, 1).Add(time.Hour)
	ttl := expiry.Sub(now)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return ttl, nil
}

// MidnightTTL returns the time left until the next local midnight, used
// for once-per-day markers.
func MidnightTTL(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now)
}

// HistoryTTL is the archive retention window.
const HistoryTTL = 30 * 24 * time.Hour

// RecordsTTL is the big-win feed retention window.
const RecordsTTL = 24 * time.Hour
