package clipboard

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is one observation of the OS clipboard. Type may be left
// empty; it is then derived from whichever content field is set.
type Snapshot struct {
	Type      ContentType
	Text      string
	HTML      string
	ImagePNG  []byte
	Metadata  map[string]string
	Timestamp time.Time
}

// Empty reports whether the snapshot carries no usable content.
func (s Snapshot) Empty() bool {
	return s.Text == "" && s.HTML == "" && len(s.ImagePNG) == 0
}

// Source emits snapshots when the OS clipboard changes. Implementations
// suppress consecutive duplicates so downstream consumers only see real
// changes.
type Source interface {
	Snapshots() <-chan Snapshot
	Close() error
}

// Setter writes content back into the OS clipboard when a remote entry
// arrives.
type Setter interface {
	SetText(text string) error
}

// EntryFromSnapshot builds a fresh local pending entry from an observed
// clipboard change.
func EntryFromSnapshot(snap Snapshot, deviceID, deviceName string) Entry {
	now := snap.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	typ := snap.Type
	if typ == "" {
		switch {
		case len(snap.ImagePNG) > 0:
			typ = TypeImage
		case snap.HTML != "":
			typ = TypeHTML
		default:
			typ = TypeText
		}
	}
	e := Entry{
		ID:         uuid.NewString(),
		Type:       typ,
		Text:       snap.Text,
		HTML:       snap.HTML,
		CreatedAt:  now,
		UpdatedAt:  now,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		Origin:     OriginLocal,
		SyncState:  SyncPending,
		Metadata:   snap.Metadata,
	}
	if len(snap.ImagePNG) > 0 {
		e.ImageData = append([]byte(nil), snap.ImagePNG...)
	}
	return e
}
