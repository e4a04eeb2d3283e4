package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ParseClock reads "HH:MM" as an offset from midnight.
func ParseClock(raw string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", raw, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// RestrictAccessByTime rejects requests whose local server time falls outside
// [start, end]. Both bounds are inclusive.
func RestrictAccessByTime(start, end string, now func() time.Time) (gin.HandlerFunc, error) {
	from, err := ParseClock(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseClock(end)
	if err != nil {
		return nil, err
	}
	if to < from {
		return nil, fmt.Errorf("time window end %s is before start %s", end, start)
	}
	if now == nil {
		now = time.Now
	}
	msg := fmt.Sprintf("Access to the chat app is restricted outside %s - %s.", clockLabel(from), clockLabel(to))
	return func(c *gin.Context) {
		t := now()
		offset := time.Duration(t.Hour())*time.Hour +
			time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second +
			time.Duration(t.Nanosecond())
		if offset < from || offset > to {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msg})
			return
		}
		c.Next()
	}, nil
}

// clockLabel renders an offset as 6AM, 9PM or 6:30AM.
func clockLabel(d time.Duration) string {
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	if m == 0 {
		return fmt.Sprintf("%d%s", h, suffix)
	}
	return fmt.Sprintf("%d:%02d%s", h, m, suffix)
}
