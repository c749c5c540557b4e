package domain

import "time"

// ActivityType classifies an entry of the recent-activity feed.
type ActivityType string

const (
	ActivityNew  ActivityType = "new"
	ActivityPrep ActivityType = "prep"
	ActivityDone ActivityType = "done"
)

// ActivityForStatus maps an order status to the feed icon type.
func ActivityForStatus(s OrderStatus) ActivityType {
	switch s {
	case StatusDelivered:
		return ActivityDone
	case StatusPreparing:
		return ActivityPrep
	default:
		return ActivityNew
	}
}

// Activity is one recent domain event.
type Activity struct {
	ID           string       `json:"id"`
	Type         ActivityType `json:"type"`
	Title        string       `json:"title"`
	SubtitleBase string       `json:"subtitleBase"`
	Timestamp    time.Time    `json:"timestamp"`
}

// ActivityView adds the rendered subtitle ("base - 5 minutes ago").
type ActivityView struct {
	Activity
	Subtitle string `json:"subtitle"`
}
