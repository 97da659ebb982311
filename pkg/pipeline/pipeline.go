// Package pipeline orchestrates a full install run: dependency
// resolution, bottle and size resolution, concurrent downloads,
// verification and extraction into the cellar, relocation, linking
// into the prefix, and post-install hooks. Stages run over the shared
// registry; a package that errors stalls at its stage and later
// stages skip it, so one bad package never aborts the run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pourtree/pourtree/pkg/archive"
	"github.com/pourtree/pourtree/pkg/config"
	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/fetch"
	"github.com/pourtree/pourtree/pkg/filesystem"
	"github.com/pourtree/pourtree/pkg/linker"
	"github.com/pourtree/pourtree/pkg/logging"
	"github.com/pourtree/pourtree/pkg/meta"
	"github.com/pourtree/pourtree/pkg/paths"
	"github.com/pourtree/pourtree/pkg/postinstall"
	"github.com/pourtree/pourtree/pkg/registry"
	"github.com/pourtree/pourtree/pkg/relocate"
	"github.com/pourtree/pourtree/pkg/resolve"
	"github.com/pourtree/pourtree/pkg/types"
)

// Options tune a single pipeline run.
type Options struct {
	// Force re-downloads archives even when cached.
	Force bool

	// SkipUnpack stops the run after download and verification,
	// leaving the cellar untouched.
	SkipUnpack bool

	// Progress, when set, is called once per download to obtain a
	// sink for that package's transfer events. May return nil.
	Progress func(p *types.Package) types.ProgressSink
}

// Result summarizes a pipeline run.
type Result struct {
	// Installed packages reached their terminal stage.
	Installed []*types.Package

	// Failed packages stalled with at least one error.
	Failed []*types.Package

	// Unresolved holds one error per requested or dependency name
	// missing from the formula store.
	Unresolved []error

	// Warnings are non-fatal findings: failed size probes, missing
	// manifests, failed post-install hooks.
	Warnings []error

	// DownloadSize is the total bytes of archives that were not
	// already cached when the run started.
	DownloadSize int64
}

// Pipeline is a single-use install pipeline over a formula store.
type Pipeline struct {
	cfg      *config.Config
	paths    paths.Paths
	fs       types.FS
	store    types.FormulaStore
	registry *registry.Registry
	opts     Options
	logger   zerolog.Logger

	mu       sync.Mutex
	warnings []error
}

// New creates a pipeline for one run.
func New(cfg *config.Config, store types.FormulaStore, opts Options) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		paths:    paths.New(cfg),
		fs:       filesystem.NewOS(),
		store:    store,
		registry: registry.New(),
		opts:     opts,
		logger:   logging.GetLogger("pipeline"),
	}
}

// Run installs the named packages and their transitive dependencies.
// The returned error is reserved for environment-level failures that
// abort the whole run; per-package failures land in the result.
func (pl *Pipeline) Run(ctx context.Context, names []string) (*Result, error) {
	defer logging.LogDuration(time.Now(), "install run")

	if err := pl.paths.EnsureLayout(pl.fs); err != nil {
		return nil, err
	}

	deps := resolve.NewDependencyResolver(pl.store, pl.registry)
	unresolved := deps.Resolve(names)

	pl.resolveBottles()

	if err := pl.resolveSizes(ctx); err != nil {
		return nil, err
	}

	if err := pl.download(ctx); err != nil {
		return nil, err
	}

	if err := pl.verifyAndUnpack(); err != nil {
		return nil, err
	}

	if !pl.opts.SkipUnpack {
		if err := pl.relocatePackages(); err != nil {
			return nil, err
		}
		pl.linkPackages()
		pl.runHooks(ctx)
	}

	return pl.collect(unresolved), nil
}

// Registry exposes the package registry, mainly for status reporting.
func (pl *Pipeline) Registry() *registry.Registry {
	return pl.registry
}

func (pl *Pipeline) warn(err error) {
	pl.mu.Lock()
	pl.warnings = append(pl.warnings, err)
	pl.mu.Unlock()
}

// group returns an errgroup bounded by the configured concurrency.
// Stage workers report failures on their package, not through the
// group, so a group error only ever means context cancellation.
func (pl *Pipeline) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	limit := pl.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	return g, gctx
}

func (pl *Pipeline) resolveBottles() {
	bottles := resolve.NewBottleResolver(pl.cfg)
	for _, p := range pl.registry.Ready(types.StageResolved) {
		f, ok := pl.store.Lookup(p.Name)
		if !ok {
			// Cannot happen for packages the dependency resolver
			// admitted, but fail loudly rather than panic.
			p.Fail(errors.Newf(errors.ErrUnresolvedName, "formula %s disappeared from store", p.Name))
			continue
		}
		bottles.Resolve(f, p)
	}
}

func (pl *Pipeline) resolveSizes(ctx context.Context) error {
	sizes := resolve.NewSizeResolver(pl.paths)
	g, gctx := pl.group(ctx)

	for _, p := range pl.registry.Ready(types.StageURLResolved) {
		p := p
		g.Go(func() error {
			if err := sizes.Resolve(gctx, p); err != nil {
				pl.warn(err)
			}
			return gctx.Err()
		})
	}
	return g.Wait()
}

func (pl *Pipeline) download(ctx context.Context) error {
	g, gctx := pl.group(ctx)

	for _, p := range pl.registry.Ready(types.StageSizeResolved) {
		p := p
		g.Go(func() error {
			var sink types.ProgressSink
			if pl.opts.Progress != nil {
				sink = pl.opts.Progress(p)
			}

			task := fetch.DownloadTask{
				URL:   p.URL,
				Dest:  p.ArchivePath,
				Force: pl.opts.Force,
				Sink:  sink,
			}
			if _, err := task.Run(gctx); err != nil {
				p.Fail(err)
				return gctx.Err()
			}
			p.Advance(types.StageDownloaded)
			return gctx.Err()
		})
	}
	return g.Wait()
}

func (pl *Pipeline) verifyAndUnpack() error {
	g, _ := pl.group(context.Background())

	for _, p := range pl.registry.Ready(types.StageDownloaded) {
		p := p
		g.Go(func() error {
			pl.verifyPackage(p)
			return nil
		})
	}
	return g.Wait()
}

// verifyPackage checks the archive against its bottle checksum,
// validates and records the member list, and unless the run skips
// unpacking, extracts it into the cellar and persists the install
// record.
func (pl *Pipeline) verifyPackage(p *types.Package) {
	if err := fetch.VerifySha256(p.ArchivePath, p.Sha256); err != nil {
		p.Fail(err)
		return
	}

	a, err := archive.Open(p.ArchivePath)
	if err != nil {
		p.Fail(err)
		return
	}
	entries, err := a.Entries()
	if err != nil {
		p.Fail(err)
		return
	}

	p.Keg = fmt.Sprintf("%s/%s", p.Name, p.VersionFull())
	pl.validateEntries(p, entries)
	p.Files = entries

	if !pl.opts.SkipUnpack {
		if err := a.Unpack(pl.paths.CellarDir()); err != nil {
			p.Fail(err)
			return
		}
	}

	p.Advance(types.StageVerified)
	pl.logger.Debug().Str("package", p.Name).Int("files", len(p.Files)).Msg("verified")

	if !pl.opts.SkipUnpack {
		pl.saveMeta(p)
	}
}

// validateEntries checks every archive member lives under the
// package's keg and that the manifest marker is present. Both findings
// are warnings, not failures; some bottles legitimately ship without a
// manifest.
func (pl *Pipeline) validateEntries(p *types.Package, entries []string) {
	kegPrefix := p.Keg + "/"
	manifest := p.ManifestFile()
	haveManifest := false

	for _, entry := range entries {
		if entry != p.Keg && !strings.HasPrefix(entry, kegPrefix) {
			pl.logger.Error().Str("package", p.Name).Str("entry", entry).
				Msg("archive entry outside keg")
			pl.warn(errors.Newf(errors.ErrArchiveInvalid,
				"archive of %s contains stray entry %s", p.Name, entry).
				WithDetail("package", p.Name).
				WithDetail("entry", entry))
		}
		if entry == manifest {
			haveManifest = true
		}
	}

	if !haveManifest {
		pl.warn(errors.Newf(errors.ErrArchiveInvalid,
			"archive of %s has no manifest %s", p.Name, manifest))
	}
}

func (pl *Pipeline) relocatePackages() error {
	engine := relocate.NewEngine(relocate.NewPattern(pl.cfg), pl.paths.CellarDir(), pl.fs)
	g, _ := pl.group(context.Background())

	for _, p := range pl.registry.Ready(types.StageVerified) {
		p := p
		g.Go(func() error {
			if p.Relocate != types.RelocateSkip {
				if err := engine.RelocatePackage(p); err != nil {
					p.Fail(err)
					return nil
				}
			}
			p.Advance(types.StageRelocated)
			pl.saveMeta(p)
			return nil
		})
	}
	return g.Wait()
}

// linkPackages runs sequentially: links from different kegs may share
// parent directories in the prefix.
func (pl *Pipeline) linkPackages() {
	l := linker.New(pl.paths, pl.fs)

	for _, p := range pl.registry.Ready(types.StageRelocated) {
		if err := l.LinkPackage(p); err != nil {
			p.Fail(err)
			continue
		}
		p.Advance(types.StageLinked)
		pl.saveMeta(p)
	}
}

// runHooks executes post-install scripts. Hook failure is a warning:
// the package is installed and linked either way.
func (pl *Pipeline) runHooks(ctx context.Context) {
	runner := postinstall.NewRunner(pl.paths)

	for _, p := range pl.registry.Ready(types.StageLinked) {
		if err := runner.Run(ctx, p); err != nil {
			pl.warn(err)
		}
		p.Advance(types.StageDone)
	}
}

func (pl *Pipeline) saveMeta(p *types.Package) {
	store := meta.NewStore(pl.paths, pl.fs)
	if err := store.Save(p.Name, types.MetaFromPackage(p)); err != nil {
		p.Fail(err)
	}
}

// terminalStage is how far packages get on this run.
func (pl *Pipeline) terminalStage() types.Stage {
	if pl.opts.SkipUnpack {
		return types.StageVerified
	}
	return types.StageDone
}

func (pl *Pipeline) collect(unresolved []error) *Result {
	result := &Result{
		Unresolved: unresolved,
		Warnings:   pl.warnings,
	}

	terminal := pl.terminalStage()
	for _, p := range pl.registry.All() {
		switch {
		case p.Failed():
			result.Failed = append(result.Failed, p)
		case p.Stage >= terminal:
			result.Installed = append(result.Installed, p)
			result.DownloadSize += p.DownloadSize
		default:
			// Stalled without an error only happens on cancellation.
			result.Failed = append(result.Failed, p)
		}
	}
	return result
}
