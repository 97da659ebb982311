// Package postinstall runs optional per-package hook scripts after a
// package is linked. A script lives at <scripts dir>/<name>.sh and
// must define a post_install shell function.
package postinstall

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/logging"
	"github.com/pourtree/pourtree/pkg/paths"
	"github.com/pourtree/pourtree/pkg/types"
)

// Runner executes post-install hook scripts.
type Runner struct {
	paths  paths.Paths
	logger zerolog.Logger
}

// NewRunner creates a Runner over the configured scripts dir.
func NewRunner(p paths.Paths) *Runner {
	return &Runner{
		paths:  p,
		logger: logging.GetLogger("postinstall"),
	}
}

// Run executes the package's hook script if one exists. The script is
// sourced with PREFIX, CELLAR and PKG_NAME exported, then its
// post_install function is invoked. CELLAR is the package's own keg
// directory, not the cellar root. Script output is logged; a non-zero
// exit yields an error carrying the combined output. Having no script
// is not an error.
func (r *Runner) Run(ctx context.Context, p *types.Package) error {
	script := r.paths.PostInstallScript(p.Name)
	if _, err := os.Stat(script); err != nil {
		return nil
	}

	r.logger.Info().Str("package", p.Name).Str("script", script).
		Msg("running post-install hook")

	command := fmt.Sprintf(
		"export PREFIX='%s'; export CELLAR='%s'; export PKG_NAME=%s; source '%s' && post_install",
		r.paths.PrefixDir(), r.paths.KegPath(p.Keg), p.Name, script)

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if trimmed := strings.TrimSpace(output.String()); trimmed != "" {
		r.logger.Info().Str("package", p.Name).Msg("hook output:\n" + trimmed)
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrPostInstallFailed,
			"post-install hook of %s failed", p.Name).
			WithDetail("package", p.Name).
			WithDetail("output", output.String())
	}
	return nil
}
