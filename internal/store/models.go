package store

import "time"

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// PackageRun records one packaging run
type PackageRun struct {
	ID             int64
	RunID          string // uuid shown to users
	SourceRoot     string
	Revision       string // revision requested, e.g. HEAD
	Commit         string // commit id the snapshot was taken from
	Backend        string // snapshot backend: "git" or "go-git"
	Version        string
	VersionFound   bool
	ArtifactPath   string
	ArtifactSHA256 string
	ArtifactSize   int64
	EntryCount     int
	Status         string // "running", "completed", "failed"
	ErrorMessage   string
	StartTime      time.Time
	EndTime        time.Time
}
