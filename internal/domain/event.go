package domain

import "time"

// EventStatus tracks how far an event has progressed through the mapping
// pipeline. Transitions: UNMAPPED → MAPPED on the normal path, and
// → MODIFIED when the checker detects re-ingestion drift.
type EventStatus string

const (
	StatusUnmapped EventStatus = "unmapped"
	StatusMapped   EventStatus = "mapped"
	StatusModified EventStatus = "modified"
)

// NoaaRecord tracks one ingested yearly Storm Events source file. The
// last-modified date comes from the publication date embedded in the file
// name and is how the checker detects re-published years.
type NoaaRecord struct {
	ID           int64
	FileYear     int
	LastModified time.Time
}

// NoaaEvent is one NOAA storm event. EventID is NOAA's identifier, unique
// within the source; ID is ours.
type NoaaEvent struct {
	ID           int64
	NoaaRecordID int64
	EventID      int64
	Product      string // NOAA category label, e.g. "Flash Flood"
	Start        time.Time
	End          time.Time
	Status       EventStatus

	// Location fields.
	BeginLat  *float64
	BeginLon  *float64
	EndLat    *float64
	EndLon    *float64
	County    string
	BeginCity *string
	EndCity   *string

	// Impact fields. Damage amounts are whole dollars.
	Magnitude        *string
	DamageProperty   int64
	DamageCrops      int64
	DeathsDirect     int
	DeathsIndirect   int
	InjuriesDirect   int
	InjuriesIndirect int

	// Narrative fields.
	EventNarrative   *string
	EpisodeNarrative *string
}

// NcFile is one ingested NetCDF product file in object storage. EventID and
// RefFileID start nil and are attached by the mapper and the kerchunker
// respectively.
type NcFile struct {
	ID        int64
	S3Path    string
	DateTime  time.Time
	Product   string
	EventID   *int64
	RefFileID *int64
}

// IndividualRefFile is the per-file chunk index built over one NcFile (1:1).
type IndividualRefFile struct {
	ID       int64
	S3Path   string
	DateTime time.Time
	Product  string
	EventID  *int64
	NcFileID *int64
}

// EventRefFile is the combined chunk index spanning all files linked to one
// event. At most one exists per event.
type EventRefFile struct {
	ID      int64
	S3Path  string
	Product string
	EventID int64
}

// MappedEvent pairs a freshly mapped event with the product files linked
// to it, for downstream notification.
type MappedEvent struct {
	Event NoaaEvent
	Files []NcFile
}

// LastUploadedDate records, per product, the most recent origin date
// directory the uploader has finished copying.
type LastUploadedDate struct {
	ID      int64
	Product string
	Date    time.Time
}

// FailedUpload is a durable record of a file the uploader gave up on after
// exhausting its retries, kept for later inspection and re-runs.
type FailedUpload struct {
	ID          int64
	RemotePath  string
	Product     string
	DateDir     string
	LastError   string
	CreatedAt   time.Time
	LastAttempt time.Time
}
