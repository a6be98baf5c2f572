package cloudsync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"velocity-scout/agents/velocity-scout/cloud"
	"velocity-scout/internal/models"
	"velocity-scout/shared/storage"
)

const (
	MsgDownloaded   = "DB file successfully downloaded from cloud."
	MsgUploaded     = "DB file successfully uploaded to cloud."
	MsgNoRemoteFile = "No DB file found in cloud. Starting with local DB."
	MsgNoLocalFile  = "No local DB file to upload."
	msgErrorPrefix  = "Sync error occurred: "

	downloadTempPattern = ".velocity-scout-download-*.tmp"
)

// Engine states, traced in debug logs.
const (
	stateIdle        = "idle"
	stateAcquiring   = "acquiring_credential"
	stateAuthorized  = "authorized"
	stateAuthFailed  = "auth_failed"
	stateListing     = "listing"
	stateDownloading = "downloading"
	stateUploading   = "uploading"
	stateSkipped     = "skipped"
	stateSuccess     = "success"
	stateError       = "error"
)

// RemoteStore is the cloud object store the database is mirrored to.
type RemoteStore interface {
	FindByName(ctx context.Context, name string) ([]cloud.RemoteFile, error)
	Download(ctx context.Context, id string, w io.Writer) (int64, error)
	Update(ctx context.Context, id, name string, r io.Reader) error
	Create(ctx context.Context, name string, r io.Reader) (string, error)
}

// RemoteOpener connects to the remote store with an authorized token source.
type RemoteOpener func(ctx context.Context, ts oauth2.TokenSource) (RemoteStore, error)

// DriveOpener opens Google Drive.
func DriveOpener(ctx context.Context, ts oauth2.TokenSource) (RemoteStore, error) {
	return cloud.NewDriveStore(ctx, ts)
}

// Engine moves the whole local database file to or from the cloud, one
// direction per run. It owns the local store handle because a download
// replaces the database underneath it.
//
// runMu serializes runs. mu guards store and secretPath only, so readers of
// Store never wait on authorization or a transfer.
type Engine struct {
	runMu sync.Mutex

	mu         sync.Mutex
	store      *storage.RecordStore
	secretPath string
	authorizer cloud.Authorizer
	openRemote RemoteOpener
}

func NewEngine(store *storage.RecordStore, secretPath string, authorizer cloud.Authorizer, openRemote RemoteOpener) *Engine {
	if openRemote == nil {
		openRemote = DriveOpener
	}
	return &Engine{
		store:      store,
		secretPath: secretPath,
		authorizer: authorizer,
		openRemote: openRemote,
	}
}

// Store returns the current local store. It changes after a download.
func (e *Engine) Store() *storage.RecordStore {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store
}

// SetSecretPath changes the client secret file used for a full authorization.
func (e *Engine) SetSecretPath(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.secretPath = path
}

// Run performs one sync in the given direction. Failures are reported in
// the outcome, never retried.
func (e *Engine) Run(ctx context.Context, direction models.Direction) models.SyncOutcome {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	store, secretPath := e.store, e.secretPath
	e.mu.Unlock()

	logger := log.With().Str("direction", string(direction)).Logger()
	logger.Debug().Str("state", stateIdle).Msg("Sync requested")

	outcome, err := e.run(ctx, direction, store, secretPath, logger)
	if err != nil {
		logger.Error().Err(err).Str("state", stateError).Msg("Sync failed")
		return models.SyncOutcome{
			Direction: direction,
			Status:    models.SyncError,
			Message:   msgErrorPrefix + err.Error(),
		}
	}
	logger.Info().Str("status", string(outcome.Status)).Msg(outcome.Message)
	return outcome
}

func (e *Engine) run(ctx context.Context, direction models.Direction, store *storage.RecordStore, secretPath string, logger zerolog.Logger) (models.SyncOutcome, error) {
	localPath := store.Path()
	name := filepath.Base(localPath)

	if direction == models.DirectionUpload && !storage.FileExists(localPath) {
		logger.Debug().Str("state", stateSkipped).Msg("No local database")
		return models.SyncOutcome{Direction: direction, Status: models.SyncSkip, Message: MsgNoLocalFile}, nil
	}

	logger.Debug().Str("state", stateAcquiring).Msg("Acquiring credential")
	creds := cloud.NewCredentialStore(store, secretPath, e.authorizer)
	cred, err := creds.Acquire(ctx)
	if err != nil {
		logger.Debug().Str("state", stateAuthFailed).Msg("Credential unavailable")
		return models.SyncOutcome{}, err
	}
	logger.Debug().Str("state", stateAuthorized).Msg("Credential ready")

	remote, err := e.openRemote(ctx, creds.TokenSource(ctx, cred))
	if err != nil {
		return models.SyncOutcome{}, err
	}

	logger.Debug().Str("state", stateListing).Str("name", name).Msg("Looking up remote database")
	files, err := remote.FindByName(ctx, name)
	if err != nil {
		return models.SyncOutcome{}, err
	}
	if len(files) > 1 {
		logger.Warn().Int("matches", len(files)).Str("file_id", files[0].ID).Msg("Several remote copies found, using the most recently modified")
	}

	switch direction {
	case models.DirectionDownload:
		if len(files) == 0 {
			logger.Debug().Str("state", stateSkipped).Msg("No remote database")
			return models.SyncOutcome{Direction: direction, Status: models.SyncSkip, Message: MsgNoRemoteFile}, nil
		}
		logger.Debug().Str("state", stateDownloading).Str("file_id", files[0].ID).Msg("Downloading")
		if err := e.download(ctx, remote, files[0], store, logger); err != nil {
			return models.SyncOutcome{}, err
		}
		logger.Debug().Str("state", stateSuccess).Msg("Download finished")
		return models.SyncOutcome{Direction: direction, Status: models.SyncSuccess, Message: MsgDownloaded, Downloaded: true}, nil

	case models.DirectionUpload:
		logger.Debug().Str("state", stateUploading).Msg("Uploading")
		if err := upload(ctx, remote, files, store, name); err != nil {
			return models.SyncOutcome{}, err
		}
		logger.Debug().Str("state", stateSuccess).Msg("Upload finished")
		return models.SyncOutcome{Direction: direction, Status: models.SyncSuccess, Message: MsgUploaded}, nil

	default:
		return models.SyncOutcome{}, fmt.Errorf("unknown sync direction %q", direction)
	}
}

// download replaces the local database with the remote copy, reopens it and
// carries the local credential forward when the remote copy has none.
// Handles to the previous store are closed; a discovery still holding one
// fails its save instead of writing to the replaced file.
func (e *Engine) download(ctx context.Context, remote RemoteStore, file cloud.RemoteFile, store *storage.RecordStore, logger zerolog.Logger) error {
	localPath := store.Path()

	w, err := storage.NewAtomicWriter(localPath, downloadTempPattern)
	if err != nil {
		return err
	}
	n, err := remote.Download(ctx, file.ID, w)
	if err != nil {
		w.Abort()
		return err
	}

	// Read the token after the transfer so a refresh made during it is kept.
	token, hadToken, err := store.GetSetting(storage.SettingAuthToken)
	if err != nil {
		w.Abort()
		return err
	}

	if err := w.Commit(); err != nil {
		return fmt.Errorf("failed to replace local database: %w", err)
	}
	logger.Debug().Int64("bytes", n).Str("path", localPath).Msg("Local database replaced")

	fresh, err := storage.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open downloaded database: %w", err)
	}

	if hadToken && token != "" {
		existing, ok, err := fresh.GetSetting(storage.SettingAuthToken)
		if err != nil {
			fresh.Close()
			return err
		}
		if !ok || existing == "" {
			if err := fresh.SetSetting(storage.SettingAuthToken, token); err != nil {
				fresh.Close()
				return fmt.Errorf("failed to carry credential into downloaded database: %w", err)
			}
			logger.Debug().Msg("Carried local credential into downloaded database")
		}
	}

	e.mu.Lock()
	e.store = fresh
	e.mu.Unlock()

	if err := store.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close previous database handle")
	}
	return nil
}

// upload sends a consistent snapshot of the store rather than the live file,
// so a discovery saving results meanwhile cannot tear the uploaded copy.
func upload(ctx context.Context, remote RemoteStore, files []cloud.RemoteFile, store *storage.RecordStore, name string) error {
	dir, err := os.MkdirTemp("", "velocity-scout-upload-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, name)
	if err := store.Snapshot(ctx, snapshot); err != nil {
		return err
	}

	f, err := os.Open(snapshot)
	if err != nil {
		return fmt.Errorf("failed to open database snapshot: %w", err)
	}
	defer f.Close()

	if len(files) > 0 {
		return remote.Update(ctx, files[0].ID, name, f)
	}
	_, err = remote.Create(ctx, name, f)
	return err
}
