package models

import "time"

// UserLocation is one position sample reported by a field operator.
type UserLocation struct {
	ID         string
	UserID     string
	Latitude   float64
	Longitude  float64
	Altitude   *float64
	Accuracy   *float64
	Speed      *float64
	Heading    *float64
	RecordedAt time.Time
	CreatedAt  time.Time

	Username     string
	FullName     string
	ProfilePhoto *string
}
