// package models defines the data model for the download queue service
package models

import (
	"time"
)

// TaskRepository persists [DownloadTask] records.
type TaskRepository interface {
	Save(task *DownloadTask) error
	Get(id string) (*DownloadTask, error)
	List() ([]*DownloadTask, error)
	Delete(id string) error
}

// SessionRepository persists [PlatformSession] records together with their sealed cookie blob.
type SessionRepository interface {
	Get(platformID string) (*PlatformSession, error)
	List() ([]*PlatformSession, error)
	Upsert(session *PlatformSession, sealedCookies string) error
	Cookies(platformID string) (string, error)
	MarkExpired(platformID string, now time.Time) error
	Delete(platformID string) error
}

// QueueStatus is the authoritative snapshot returned to façade callers.
type QueueStatus struct {
	IsPaused    bool            `json:"is_paused"`
	Concurrency int             `json:"concurrency"`
	Tasks       []*DownloadTask `json:"tasks"`
}

// Counts tallies tasks by status.
func (q QueueStatus) Counts() map[TaskStatus]int {
	counts := make(map[TaskStatus]int, len(allStatuses))
	for _, t := range q.Tasks {
		counts[t.Status]++
	}
	return counts
}

// DownloaderInfo reports the external downloader binary.
type DownloaderInfo struct {
	Binary          string `json:"binary"`
	Available       bool   `json:"available"`
	Version         string `json:"version,omitempty"`
	PreviousVersion string `json:"previous_version,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Updated reports whether an update changed the version.
func (d DownloaderInfo) Updated() bool {
	return d.PreviousVersion != "" && d.Version != "" && d.PreviousVersion != d.Version
}
