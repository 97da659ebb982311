package main

import (
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pourtree/pourtree/pkg/config"
	"github.com/pourtree/pourtree/pkg/formula"
	"github.com/pourtree/pourtree/pkg/pipeline"
	"github.com/pourtree/pourtree/pkg/types"
)

var (
	addForce      bool
	addSkipUnpack bool
	addDatabase   string
)

var addCmd = &cobra.Command{
	Use:   "add <package>...",
	Short: "Install packages and their dependencies",
	Long: `Resolve the named packages and their transitive dependencies, download
their bottles, and install them into the cellar and prefix.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().BoolVar(&addForce, "force", false, "Re-download bottles even when cached")
	addCmd.Flags().BoolVar(&addSkipUnpack, "skip-unpack", false, "Download and verify only, leave the cellar untouched")
	addCmd.Flags().StringVar(&addDatabase, "db", "", "Formula database file (JSON)")
	_ = addCmd.MarkFlagRequired("db")
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	store, err := formula.LoadFile(addDatabase)
	if err != nil {
		return err
	}

	multi := pterm.DefaultMultiPrinter
	progress, _ := multi.Start()
	defer func() { _, _ = progress.Stop() }()

	pl := pipeline.New(cfg, store, pipeline.Options{
		Force:      addForce,
		SkipUnpack: addSkipUnpack,
		Progress: func(p *types.Package) types.ProgressSink {
			return newBarSink(&multi, p)
		},
	})

	result, err := pl.Run(ctx, args)
	if err != nil {
		return err
	}
	_, _ = progress.Stop()

	printSummary(result)

	if len(result.Failed) > 0 || len(result.Unresolved) > 0 {
		return fmt.Errorf("%d of %d packages failed",
			len(result.Failed)+len(result.Unresolved),
			pl.Registry().Len()+len(result.Unresolved))
	}
	return nil
}

func printSummary(result *pipeline.Result) {
	for _, w := range result.Warnings {
		pterm.Warning.Println(w.Error())
	}
	for _, err := range result.Unresolved {
		pterm.Error.Println(err.Error())
	}
	for _, p := range result.Failed {
		for _, err := range p.Errors {
			pterm.Error.Printf("%s: %s\n", p.Name, err.Error())
		}
	}
	for _, p := range result.Installed {
		pterm.Success.Printf("%s %s (%s)\n", p.Name, p.VersionFull(), p.Stage)
	}
	if result.DownloadSize > 0 {
		pterm.Info.Printf("downloaded %s\n", formatBytes(result.DownloadSize))
	}
}

// barSink drives a per-package pterm progressbar from download events.
// Sends arrive from a download goroutine and must not block; pterm
// writes through the multi printer's buffered writer.
type barSink struct {
	mu   sync.Mutex
	bar  *pterm.ProgressbarPrinter
	last int64
}

func newBarSink(multi *pterm.MultiPrinter, p *types.Package) *barSink {
	total := int(p.Size)
	if total <= 0 {
		total = 1
	}
	bar, _ := pterm.DefaultProgressbar.
		WithWriter(multi.NewWriter()).
		WithTitle(p.Name).
		WithTotal(total).
		Start()
	return &barSink{bar: bar}
}

func (s *barSink) Send(state types.DownloadState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.Max > 0 && s.bar.Total != int(state.Max) {
		s.bar.Total = int(state.Max)
	}
	if delta := state.Current - s.last; delta > 0 {
		s.bar.Add(int(delta))
		s.last = state.Current
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
