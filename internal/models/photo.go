package models

import "time"

// Photo is the metadata record for a geotagged capture. The binary lives in
// the object store under Bucket/ObjectKey; Checksum and Signature protect the
// record against silent replacement of the stored object.
type Photo struct {
	ID          string
	UserID      string
	Bucket      string
	ObjectKey   string
	FileName    string
	FileSize    int64
	MimeType    string
	Checksum    []byte
	Signature   []byte
	Latitude    float64
	Longitude   float64
	Orientation *float64
	Altitude    *float64
	Accuracy    *float64
	CapturedAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Username and FullName are populated by joined queries only.
	Username string
	FullName string
}

type PhotoComment struct {
	ID        string
	PhotoID   string
	UserID    string
	Comment   string
	CreatedAt time.Time

	Username string
}

// PhotoFilter narrows admin photo listings.
type PhotoFilter struct {
	UserID   string
	DateFrom *time.Time
	DateTo   *time.Time

	// Search matches file names, comment bodies and uploader usernames,
	// case insensitively.
	Search string

	// Radius search: all three must be set to take effect. RadiusKm is
	// applied with a haversine distance on the stored coordinates.
	Latitude  *float64
	Longitude *float64
	RadiusKm  *float64
}

// PhotoStats are admin-facing aggregates.
type PhotoStats struct {
	TotalPhotos    int
	TotalOperators int
	TotalBytes     int64
	FirstCapture   *time.Time
	LastCapture    *time.Time
}
