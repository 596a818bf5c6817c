package transcript

import (
	"math"
	"path"
)

// Recording is one uploaded audio file and its local working paths.
type Recording struct {
	ID               string
	OwnerID          string
	DisplayName      string
	RawPath          string
	TranscodablePath string
	DurationSeconds  float64
}

// RecordingMetadata is the recording-level row written after the segments.
type RecordingMetadata struct {
	ID              string  `json:"id"`
	OwnerID         string  `json:"owner_id"`
	DisplayName     string  `json:"display_name"`
	StoragePath     string  `json:"storage_path"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Duration returns the span from the first segment's start to the last
// segment's end, in seconds.
func Duration(segments []CanonicalSegment) float64 {
	if len(segments) == 0 {
		return 0
	}
	first, last := segments[0], segments[len(segments)-1]
	return float64(last.EndTime-first.StartTime) / 1000
}

// BuildMetadata derives the metadata row for rec. The display name falls back
// to the base name of the raw file.
func BuildMetadata(rec Recording, storagePath string, segments []CanonicalSegment) RecordingMetadata {
	name := rec.DisplayName
	if name == "" {
		name = path.Base(rec.RawPath)
	}
	return RecordingMetadata{
		ID:              rec.ID,
		OwnerID:         rec.OwnerID,
		DisplayName:     name,
		StoragePath:     storagePath,
		DurationSeconds: Duration(segments),
	}
}

// SumRecordTimes totals recording durations, skipping unknown ones.
func SumRecordTimes(durations []*float64) float64 {
	var total float64
	for _, d := range durations {
		if d != nil {
			total += *d
		}
	}
	return total
}

// RecordTime is a duration split into whole minutes and rounded seconds.
type RecordTime struct {
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// SplitRecordTime splits seconds into minutes and seconds. Seconds round half
// to even and never carry, so 119.7 reads as 1m 60s.
func SplitRecordTime(seconds float64) RecordTime {
	minutes := math.Floor(seconds / 60)
	return RecordTime{
		Minutes: int(minutes),
		Seconds: int(math.RoundToEven(seconds - minutes*60)),
	}
}
