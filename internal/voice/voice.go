// Package voice stores voice clips sent to the bot.
package voice

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/google/uuid"
)

// LegacyPrefix is the directory older deployments baked into stored paths.
const LegacyPrefix = "static/"

type Store interface {
	// Save writes the clip under key and returns the path to persist.
	Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// Delete removes a clip that was saved but never recorded.
	Delete(ctx context.Context, storedPath string) error
	// URL turns a persisted path into something a browser can fetch.
	URL(storedPath string) string
}

// NewKey returns a unique object key for one of the user's clips.
func NewKey(userID int64, ext string) string {
	if ext == "" {
		ext = ".ogg"
	}
	return path.Join("voice", strconv.FormatInt(userID, 10), uuid.NewString()+ext)
}

// ExtensionFor maps the Telegram mime type to a file extension.
func ExtensionFor(contentType string) string {
	switch contentType {
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	default:
		return ".ogg"
	}
}

func validKey(key string) error {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean[1:] != key {
		return fmt.Errorf("voice: invalid key %q", key)
	}
	return nil
}
