// Package clipboard defines the clipboard entry model shared by the history
// store, the sync engine and the wire translator, together with the
// collaborator interfaces for reading and writing the OS clipboard.
package clipboard

import "time"

// ContentType classifies what an entry primarily carries.
type ContentType string

const (
	TypeText    ContentType = "text"
	TypeHTML    ContentType = "html"
	TypeImage   ContentType = "image"
	TypeFile    ContentType = "file"
	TypeUnknown ContentType = "unknown"
)

// ParseContentType maps a wire string to a content type. Unrecognized or
// missing values default to text.
func ParseContentType(s string) ContentType {
	switch ContentType(s) {
	case TypeText, TypeHTML, TypeImage, TypeFile, TypeUnknown:
		return ContentType(s)
	default:
		return TypeText
	}
}

// Origin records which side of the sync boundary created an entry.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// SyncState tracks whether an entry has been broadcast to peers.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
	SyncFailed  SyncState = "failed"
)

// ParseSyncState maps a wire string to a sync state. Unrecognized or
// missing values default to pending.
func ParseSyncState(s string) SyncState {
	switch SyncState(s) {
	case SyncPending, SyncSynced, SyncFailed:
		return SyncState(s)
	default:
		return SyncPending
	}
}

// Entry is one item of clipboard history. The ID is immutable once created
// and globally unique across devices. Entries cross component boundaries by
// value; background sync mutates only SyncState and SyncedAt.
type Entry struct {
	ID         string            `json:"id"`
	Type       ContentType       `json:"content_type"`
	Text       string            `json:"text,omitempty"`
	HTML       string            `json:"html,omitempty"`
	ImageData  []byte            `json:"image_data,omitempty"`
	FileURL    string            `json:"file_url,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	DeviceID   string            `json:"device_id"`
	DeviceName string            `json:"device_name,omitempty"`
	Origin     Origin            `json:"origin"`
	Pinned     bool              `json:"pinned,omitempty"`
	SyncState  SyncState         `json:"sync_state"`
	SyncedAt   time.Time         `json:"synced_at,omitzero"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers can hand entries across goroutines
// without sharing the image buffer or metadata map.
func (e Entry) Clone() Entry {
	out := e
	if e.ImageData != nil {
		out.ImageData = append([]byte(nil), e.ImageData...)
	}
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
