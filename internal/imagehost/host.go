// Package imagehost stores photo binaries outside the database. The record
// store keeps only the URL and the public id handed back by Upload.
package imagehost

import (
	"context"
	"path"
	"strings"
)

type UploadResult struct {
	URL      string
	PublicID string
	Width    int
	Height   int
}

type Host interface {
	Upload(ctx context.Context, data []byte, folder string) (UploadResult, error)
	Delete(ctx context.Context, publicID string) error
	// URL is the public address of an uploaded photo.
	URL(publicID string) string
}

const rootFolder = "snapify/events"

// EventFolder is where an event's photos are uploaded.
func EventFolder(code string) string {
	return path.Join(rootFolder, code)
}

// InFolder reports whether publicID was uploaded under folder.
func InFolder(publicID, folder string) bool {
	return strings.HasPrefix(publicID, strings.TrimSuffix(folder, "/")+"/") &&
		path.Clean(publicID) == publicID
}
