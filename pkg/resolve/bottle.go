package resolve

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pourtree/pourtree/pkg/config"
	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/logging"
	"github.com/pourtree/pourtree/pkg/types"
)

// StableChannel is the only channel bottles are currently selected
// from.
const StableChannel = "stable"

// BottleResolver selects, per package, the bottle to install: the
// architecture, relocation mode, checksum, and download URL.
type BottleResolver struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewBottleResolver creates a resolver for the given configuration.
func NewBottleResolver(cfg *config.Config) *BottleResolver {
	return &BottleResolver{
		cfg:    cfg,
		logger: logging.GetLogger("resolve.bottle"),
	}
}

// Resolve selects a bottle for the package from its formula. On
// success the package advances to URLResolved; on failure it stalls
// with a coded error.
func (r *BottleResolver) Resolve(f *types.Formula, p *types.Package) {
	bottles, ok := f.Bottle[StableChannel]
	if !ok {
		r.logger.Error().Str("package", p.Name).Msg("stable channel has no bottles")
		p.Fail(errors.Newf(errors.ErrChannelUnavailable, "channel %s not available for %s", StableChannel, p.Name))
		return
	}

	arch, file, ok := r.selectArch(bottles)
	if !ok {
		p.Fail(errors.Newf(errors.ErrNoBottleForTarget,
			"target %s not found for %s", r.cfg.Target, p.Name).
			WithDetail("available", bottles.Arches()))
		return
	}
	p.Arch = arch
	p.Rebuild = bottles.Rebuild
	p.Sha256 = file.Sha256

	mode, err := types.ParseRelocateMode(file.Cellar)
	if err != nil {
		p.Fail(errors.Wrapf(err, errors.ErrUnsupportedRelocation,
			"unsupported relocation for %s", p.Name))
		return
	}
	p.Relocate = mode

	p.URL = r.bottleURL(p, file)

	r.logger.Debug().
		Str("package", p.Name).
		Str("arch", p.Arch).
		Str("relocate", p.Relocate.String()).
		Str("url", p.URL).
		Msg("bottle selected")

	p.Advance(types.StageURLResolved)
}

// selectArch picks the first matching architecture: the configured
// target, then the literal "all", then each OS fallback in order.
func (r *BottleResolver) selectArch(bottles types.BottleSpec) (string, types.BottleFile, bool) {
	candidates := append([]string{r.cfg.Target, "all"}, r.cfg.OSFallback...)
	for _, arch := range candidates {
		if file, ok := bottles.Files[arch]; ok {
			return arch, file, true
		}
	}
	return "", types.BottleFile{}, false
}

// bottleURL builds the download URL. The first configured mirror wins;
// without mirrors the formula-declared URL is used directly.
func (r *BottleResolver) bottleURL(p *types.Package, file types.BottleFile) string {
	if len(r.cfg.Mirrors) == 0 {
		return file.URL
	}

	mirror := r.cfg.Mirrors[0]
	if mirror.OCI {
		// OCI registries address versioned names as nested repositories.
		repo := strings.ReplaceAll(p.Name, "@", "/")
		return fmt.Sprintf("%s/%s/blobs/sha256:%s", mirror.URL, repo, p.Sha256)
	}

	rebuild := ""
	if p.Rebuild != 0 {
		rebuild = fmt.Sprintf(".%d", p.Rebuild)
	}
	return fmt.Sprintf("%s/%s-%s.%s.bottle%s.tar.gz", mirror.URL, p.Name, p.VersionFull(), p.Arch, rebuild)
}
