package resolve

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/fetch"
	"github.com/pourtree/pourtree/pkg/logging"
	"github.com/pourtree/pourtree/pkg/paths"
	"github.com/pourtree/pourtree/pkg/types"
)

// SizeResolver probes each package's download size with a HEAD
// request so the UI can show an accurate total. Probe failures are
// non-fatal: the size stays zero and the package proceeds.
type SizeResolver struct {
	paths  paths.Paths
	logger zerolog.Logger
}

// NewSizeResolver creates a resolver over the configured cache layout.
func NewSizeResolver(p paths.Paths) *SizeResolver {
	return &SizeResolver{
		paths:  p,
		logger: logging.GetLogger("resolve.size"),
	}
}

// Resolve fills the package's archive name and, unless the archive is
// already cached, its download size. It returns a non-fatal warning
// when probing failed; the package advances either way.
func (r *SizeResolver) Resolve(ctx context.Context, p *types.Package) error {
	p.ArchiveName = fmt.Sprintf("%s-%s.%s.bottle.tar.gz", p.Name, p.VersionFull(), p.Arch)
	p.ArchivePath = r.paths.ArchivePath(p.ArchiveName)
	defer p.Advance(types.StageSizeResolved)

	// A cached archive needs no probe and is excluded from the
	// download total.
	if _, err := os.Stat(p.ArchivePath); err == nil {
		r.logger.Debug().Str("package", p.Name).Str("archive", p.ArchivePath).Msg("archive cached")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return errors.Wrapf(err, errors.ErrSizeProbeFailed, "probing %s", p.URL)
	}

	resp, err := fetch.ClientFor(p.URL).Do(req)
	if err != nil {
		return errors.Wrapf(err, errors.ErrSizeProbeFailed, "probing %s", p.URL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Warn().
			Str("package", p.Name).
			Str("url", p.URL).
			Str("status", resp.Status).
			Msg("size probe refused")
		return nil
	}

	// resp.ContentLength is unreliable for HEAD responses; read the
	// header directly.
	size, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	p.Size = size
	p.DownloadSize = size

	r.logger.Debug().Str("package", p.Name).Int64("size", size).Msg("size probed")
	return nil
}
