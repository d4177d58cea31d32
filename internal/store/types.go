package store

import (
	"time"

	"github.com/Aman-CERP/trenton/internal/media"
)

// FileStatus is the indexing state of a MediaFile.
type FileStatus string

const (
	StatusPending FileStatus = "pending"
	StatusIndexed FileStatus = "indexed"
	StatusFailed  FileStatus = "failed"
	StatusDeleted FileStatus = "deleted"
)

// MediaFile is a file discovered under a watched folder.
// Path is the identity key; rows are soft-deleted, never removed.
type MediaFile struct {
	ID               int64          `json:"id"`
	Path             string         `json:"path"`
	Filename         string         `json:"filename"`
	FolderID         int64          `json:"folder_id,omitempty"`
	Modality         media.Modality `json:"modality"`
	MimeType         string         `json:"mime_type,omitempty"`
	Size             int64          `json:"size"`
	ContentHash      string         `json:"content_hash"`
	ModTime          time.Time      `json:"modified_at"`
	Status           FileStatus     `json:"status"`
	Deleted          bool           `json:"deleted"`
	DeletedAt        *time.Time     `json:"deleted_at,omitempty"`
	DeletionNotified bool           `json:"deletion_notified"`
	IndexedAt        *time.Time     `json:"indexed_at,omitempty"`
	LastError        string         `json:"last_error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Embedding is the vector of one file for one (modality, model version).
// ContentHash records which content the vector was computed from.
type Embedding struct {
	FileID       int64          `json:"file_id"`
	Modality     media.Modality `json:"modality"`
	ModelVersion string         `json:"model_version"`
	ContentHash  string         `json:"content_hash"`
	Vector       []float32      `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Folder is a watched root.
type Folder struct {
	ID            int64        `json:"id"`
	Path          string       `json:"path"`
	Filter        media.Filter `json:"modality_filter"`
	WatchEnabled  bool         `json:"watch_enabled"`
	CreatedAt     time.Time    `json:"created_at"`
	LastIndexedAt *time.Time   `json:"last_indexed_at,omitempty"`
}

// Match is a scored query candidate.
type Match struct {
	File  MediaFile
	Score float64
}

// QueryParams selects and ranks candidates.
type QueryParams struct {
	Vector       []float32
	Modality     media.Modality
	ModelVersion string
	// TopK bounds the result length; values <= 0 return nothing.
	TopK      int
	Threshold float64
	// ExcludeFileID drops one file from the candidates (0 excludes none).
	ExcludeFileID int64
}

// Stats summarizes store contents.
type Stats struct {
	Folders         int            `json:"total_folders"`
	Files           int            `json:"total_files"`
	DeletedFiles    int            `json:"deleted_files"`
	FailedFiles     int            `json:"failed_files"`
	Embeddings      int            `json:"total_embeddings"`
	FilesByModality map[string]int `json:"files_by_modality"`
}
