package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"

	"github.com/google/uuid"
)

// DefaultActivityLimit is how many recent events the feed keeps.
const DefaultActivityLimit = 8

// ActivityFeed is the bounded, newest-first log of recent domain events.
// It holds no state of its own; the entries live in the persisted document.
type ActivityFeed struct {
	limit int
	now   func() time.Time
	newID func() string
}

// NewActivityFeed creates a feed keeping at most limit entries.
func NewActivityFeed(limit int, now func() time.Time) *ActivityFeed {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	if now == nil {
		now = time.Now
	}
	return &ActivityFeed{
		limit: limit,
		now:   now,
		newID: func() string { return uuid.New().String() },
	}
}

// Limit returns the configured bound.
func (f *ActivityFeed) Limit() int {
	return f.limit
}

// Append prepends a new event and evicts the oldest ones past the limit.
func (f *ActivityFeed) Append(list []domain.Activity, typ domain.ActivityType, title, subtitleBase string) []domain.Activity {
	entry := domain.Activity{
		ID:           f.newID(),
		Type:         typ,
		Title:        title,
		SubtitleBase: strings.TrimSpace(subtitleBase),
		Timestamp:    f.now(),
	}

	out := make([]domain.Activity, 0, min(len(list)+1, f.limit))
	out = append(out, entry)
	for _, a := range list {
		if len(out) == f.limit {
			break
		}
		out = append(out, a)
	}
	return out
}

// Render attaches the human subtitle to every entry.
func (f *ActivityFeed) Render(list []domain.Activity) []domain.ActivityView {
	now := f.now()
	views := make([]domain.ActivityView, 0, len(list))
	for _, a := range list {
		views = append(views, domain.ActivityView{
			Activity: a,
			Subtitle: Subtitle(a, now),
		})
	}
	return views
}

// Subtitle joins the subtitle base with the relative time of the event.
func Subtitle(a domain.Activity, now time.Time) string {
	suffix := RelativeTime(a.Timestamp, now)
	if a.SubtitleBase == "" {
		return suffix
	}
	return a.SubtitleBase + " - " + suffix
}

// RelativeTime renders a coarse "time ago" bucket. Future timestamps read as "now".
func RelativeTime(ts, now time.Time) string {
	diff := now.Sub(ts)
	if diff < 0 {
		diff = 0
	}

	minutes := int(diff / time.Minute)
	if minutes <= 0 {
		return "now"
	}
	if minutes < 60 {
		return plural(minutes, "minute")
	}

	hours := minutes / 60
	if hours < 24 {
		return plural(hours, "hour")
	}

	return plural(hours/24, "day")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
