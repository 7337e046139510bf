package clipboard

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/clipbridge/pkg/wire"
)

const imageURIPrefix = "data:image/png;base64,"

// Translator converts between history entries and their wire envelope
// form. Encoding embeds image bytes as a base64 PNG data URI, downscaling
// oversized images first; decoding fills the defaults a sparse remote
// envelope omits.
type Translator struct {
	// MaxImageSide bounds the longer image dimension on encode.
	// Zero disables downscaling.
	MaxImageSide int
}

// Encode flattens an entry into its wire envelope.
func (t Translator) Encode(e Entry) wire.EntryEnvelope {
	env := wire.EntryEnvelope{
		ID:          e.ID,
		ContentType: string(e.Type),
		Text:        e.Text,
		HTML:        e.HTML,
		FileURL:     e.FileURL,
		CreatedAt:   toMillis(e.CreatedAt),
		UpdatedAt:   toMillis(e.UpdatedAt),
		DeviceID:    e.DeviceID,
		DeviceName:  e.DeviceName,
		Origin:      string(e.Origin),
		Pinned:      e.Pinned,
		SyncState:   string(e.SyncState),
		SyncedAt:    toMillis(e.SyncedAt),
		Metadata:    e.Metadata,
	}
	if len(e.ImageData) > 0 {
		env.ImageURI = imageURIPrefix + base64.StdEncoding.EncodeToString(t.boundImage(e.ImageData))
	}
	return env
}

// Decode expands a wire envelope into an entry. Sparse envelopes are
// tolerated: missing fields get defaults and the origin is always remote,
// whatever the sender claimed.
func (t Translator) Decode(env wire.EntryEnvelope) Entry {
	now := time.Now()
	e := Entry{
		ID:         env.ID,
		Type:       ParseContentType(env.ContentType),
		Text:       env.Text,
		HTML:       env.HTML,
		FileURL:    env.FileURL,
		CreatedAt:  fromMillis(env.CreatedAt, now),
		UpdatedAt:  fromMillis(env.UpdatedAt, now),
		DeviceID:   env.DeviceID,
		DeviceName: env.DeviceName,
		Origin:     OriginRemote,
		Pinned:     env.Pinned,
		SyncState:  ParseSyncState(env.SyncState),
		SyncedAt:   fromMillis(env.SyncedAt, time.Time{}),
		Metadata:   env.Metadata,
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.DeviceID == "" {
		e.DeviceID = "remote"
	}
	if e.DeviceName == "" {
		e.DeviceName = "Remote device"
	}
	if env.ImageURI != "" {
		if data, ok := decodeImageURI(env.ImageURI); ok {
			e.ImageData = data
		} else {
			slog.Warn("clipboard: dropping undecodable image payload", "entry", e.ID)
		}
	}
	return e
}

// boundImage downscales PNG data whose longer side exceeds MaxImageSide,
// re-encoding as PNG. Undecodable data passes through untouched so the
// receiver still gets the original bytes.
func (t Translator) boundImage(data []byte) []byte {
	if t.MaxImageSide <= 0 {
		return data
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}
	b := img.Bounds()
	if b.Dx() <= t.MaxImageSide && b.Dy() <= t.MaxImageSide {
		return data
	}
	scaled := imaging.Fit(img, t.MaxImageSide, t.MaxImageSide, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, scaled, imaging.PNG); err != nil {
		return data
	}
	return buf.Bytes()
}

// decodeImageURI splits a data URI at the first comma and base64-decodes
// the remainder.
func decodeImageURI(uri string) ([]byte, bool) {
	_, b64, found := strings.Cut(uri, ",")
	if !found {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64, fallback time.Time) time.Time {
	if ms == 0 {
		return fallback
	}
	return time.UnixMilli(ms)
}
