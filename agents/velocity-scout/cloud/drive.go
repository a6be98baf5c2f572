package cloud

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// DownloadChunkSize is the buffer used when streaming a download.
	DownloadChunkSize = 1 << 20
	// DatabaseMimeType labels the uploaded database blob.
	DatabaseMimeType = "application/x-sqlite3"
)

// RemoteFile is one object in the cloud file store.
type RemoteFile struct {
	ID           string
	Name         string
	ModifiedTime string
}

// DriveStore is the Google Drive implementation of the remote object store.
type DriveStore struct {
	service *drive.Service
}

// NewDriveStore creates a Drive client authorized by ts. Extra options are
// appended last, which lets tests point at a local server.
func NewDriveStore(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*DriveStore, error) {
	clientOpts := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	service, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return &DriveStore{service: service}, nil
}

// FindByName lists non-trashed files named exactly name, most recently
// modified first.
func (d *DriveStore) FindByName(ctx context.Context, name string) ([]RemoteFile, error) {
	q := fmt.Sprintf("name='%s' and trashed=false", escapeQuery(name))
	resp, err := d.service.Files.List().
		Q(q).
		Spaces("drive").
		Fields("files(id, name, modifiedTime)").
		OrderBy("modifiedTime desc").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list remote files: %w", err)
	}

	files := make([]RemoteFile, 0, len(resp.Files))
	for _, f := range resp.Files {
		files = append(files, RemoteFile{ID: f.Id, Name: f.Name, ModifiedTime: f.ModifiedTime})
	}
	return files, nil
}

// Download streams the content of file id into w chunk by chunk and returns
// the number of bytes written.
func (d *DriveStore) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	resp, err := d.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return 0, fmt.Errorf("failed to start download of %s: %w", id, err)
	}
	defer resp.Body.Close()

	n, err := io.CopyBuffer(w, resp.Body, make([]byte, DownloadChunkSize))
	if err != nil {
		return n, fmt.Errorf("download of %s interrupted after %d bytes: %w", id, n, err)
	}
	log.Debug().Str("file_id", id).Int64("bytes", n).Msg("Download complete")
	return n, nil
}

// Update replaces the content of file id with r in a single request.
func (d *DriveStore) Update(ctx context.Context, id, name string, r io.Reader) error {
	_, err := d.service.Files.Update(id, &drive.File{Name: name}).
		Media(r, googleapi.ContentType(DatabaseMimeType), googleapi.ChunkSize(0)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update remote file %s: %w", id, err)
	}
	return nil
}

// Create uploads r as a new file called name and returns its id.
func (d *DriveStore) Create(ctx context.Context, name string, r io.Reader) (string, error) {
	f, err := d.service.Files.Create(&drive.File{Name: name}).
		Media(r, googleapi.ContentType(DatabaseMimeType), googleapi.ChunkSize(0)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to create remote file %s: %w", name, err)
	}
	return f.Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
