package fetch

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/logging"
	"github.com/pourtree/pourtree/pkg/types"
)

// tmpSuffix is appended to the destination while a transfer is in
// flight. Only the temp file may exist for an interrupted download.
const tmpSuffix = ".part"

const copyChunkSize = 64 * 1024

// DownloadTask downloads URL to Dest, streaming through a sibling
// temp path and renaming into place on completion, so no partial file
// is ever visible at Dest. Checksum verification is a separate
// explicit step (VerifySha256).
type DownloadTask struct {
	URL  string
	Dest string

	// Force re-downloads even when Dest already exists.
	Force bool

	// Sink receives progress events; may be nil. Sends must never
	// block (see types.ProgressSink).
	Sink types.ProgressSink

	// Client overrides the URL-derived client; may be nil.
	Client *Client
}

// Run executes the task and returns the final progress state. With
// Force unset and Dest present, it returns immediately with the
// existing length and performs no network I/O.
func (t *DownloadTask) Run(ctx context.Context) (types.DownloadState, error) {
	logger := logging.GetLogger("download")

	if !t.Force {
		if info, err := os.Stat(t.Dest); err == nil {
			state := types.DownloadState{Current: info.Size(), Max: info.Size()}
			if t.Sink != nil {
				t.Sink.Send(state)
			}
			logger.Debug().Str("path", t.Dest).Int64("size", info.Size()).Msg("destination exists, skipping")
			return state, nil
		}
	}

	client := t.Client
	if client == nil {
		client = ClientFor(t.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return types.DownloadState{}, errors.Wrapf(err, errors.ErrDownloadFailed, "malformed url %s", t.URL)
	}

	resp, err := client.Do(req)
	if err != nil {
		return types.DownloadState{}, errors.Wrapf(err, errors.ErrDownloadFailed, "fetching %s", t.URL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.DownloadState{}, errors.Newf(errors.ErrDownloadFailed,
			"fetching %s: unexpected status %s", t.URL, resp.Status)
	}

	max := resp.ContentLength
	if max < 0 {
		max = 0
	}

	tmp := t.Dest + tmpSuffix
	logger.Debug().Str("url", t.URL).Str("tmp", tmp).Msg("downloading")

	file, err := os.Create(tmp)
	if err != nil {
		return types.DownloadState{}, errors.Wrapf(err, errors.ErrFileCreate, "creating %s", tmp)
	}

	var current int64
	buf := make([]byte, copyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			_ = file.Close()
			return types.DownloadState{}, errors.Wrapf(err, errors.ErrDownloadFailed, "fetching %s", t.URL)
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				_ = file.Close()
				return types.DownloadState{}, errors.Wrapf(err, errors.ErrFileWrite, "writing %s", tmp)
			}
			current += int64(n)
			if t.Sink != nil {
				t.Sink.Send(types.DownloadState{Current: current, Max: max})
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = file.Close()
			return types.DownloadState{}, errors.Wrapf(readErr, errors.ErrDownloadFailed, "fetching %s", t.URL)
		}
	}

	// Flush durably before the rename commits the file.
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return types.DownloadState{}, errors.Wrapf(err, errors.ErrFileWrite, "syncing %s", tmp)
	}
	if err := file.Close(); err != nil {
		return types.DownloadState{}, errors.Wrapf(err, errors.ErrFileWrite, "closing %s", tmp)
	}

	logger.Debug().Str("from", tmp).Str("to", t.Dest).Msg("rename")
	if err := os.Rename(tmp, t.Dest); err != nil {
		return types.DownloadState{}, errors.Wrapf(err, errors.ErrFileWrite, "committing %s", t.Dest)
	}

	return types.DownloadState{Current: current, Max: max}, nil
}
