package store

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
)

var mimeExtensions = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/webp":    "webp",
	"image/gif":     "gif",
	"image/svg+xml": "svg",
}

// UploadDataURL decodes a base64 data URL, uploads it into the poster bucket
// under a session-scoped name and returns the public URL of the object.
func (s *Client) UploadDataURL(sessionID, field, dataURL string) (string, error) {
	mimeType, data, err := decodeDataURL(dataURL)
	if err != nil {
		return "", err
	}

	ext, ok := mimeExtensions[mimeType]
	if !ok {
		ext = "png"
	}
	objectPath := fmt.Sprintf("uploads/%s-%s.%s", sessionID, field, ext)

	upsert := true
	_, err = s.db.Storage.UploadFile(posterBucket, objectPath, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &mimeType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to storage: %w", objectPath, err)
	}

	s.logger.WithField("object_path", objectPath).Debug("Uploaded embedded image to storage")
	return s.PublicURL(objectPath), nil
}

// PublicURL resolves a storage path inside the poster bucket to its public URL.
func (s *Client) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		strings.TrimSuffix(s.supabaseURL, "/"), posterBucket, strings.TrimPrefix(path, "/"))
}

// decodeDataURL splits "data:<mime>;base64,<payload>" into its mime type and
// decoded bytes.
func decodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL")
	}

	mimeType := meta
	if semi := strings.Index(meta, ";"); semi >= 0 {
		mimeType = meta[:semi]
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	if !strings.Contains(meta, "base64") {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decoding data URL payload: %w", err)
	}
	return mimeType, data, nil
}
