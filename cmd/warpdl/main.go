// Command warpdl drives the content-system Downloader from the command
// line: fetch one target manifest from a URL, prepare its diff report
// (no previously installed build is passed), report required space, and
// run the download to completion.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/polynite/warpdl/contentsystem"
)

var (
	flagLanguage    string
	flagDLCs        string
	flagInstallRoot string
	flagVerify      bool
	flagVerbose     bool
)

func main() {
	root := &cobra.Command{
		Use:   "warpdl",
		Short: "content-system downloader for GOG Galaxy-style builds",
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newDownloadCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <manifest-url>",
		Short: "download and install the build described by a manifest URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd.Context(), args[0])
		},
	}
	cmd.Flags().StringVar(&flagLanguage, "language", "en-US", "language code to install")
	cmd.Flags().StringVar(&flagDLCs, "dlcs", "", "comma-separated DLC product ids")
	cmd.Flags().StringVar(&flagInstallRoot, "install-dir", "", "root directory; the build is installed into a subdirectory named by the manifest")
	cmd.Flags().BoolVar(&flagVerify, "verify", false, "force content verification before resuming")
	cmd.MarkFlagRequired("install-dir")
	return cmd
}

func runDownload(ctx context.Context, manifestURL string) error {
	logger := logrus.StandardLogger()
	if flagVerbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	core := &contentsystem.Core{
		HTTP:   contentsystem.NewDefaultHTTPClient(logger),
		Logger: logger,
	}

	manifest, err := fetchManifest(ctx, core.HTTP, manifestURL)
	if err != nil {
		return err
	}

	var dlcs []string
	if flagDLCs != "" {
		dlcs = strings.Split(flagDLCs, ",")
	}

	b := &contentsystem.Builder{
		Core:        core,
		Manifest:    manifest,
		Language:    flagLanguage,
		DLCs:        dlcs,
		InstallRoot: flagInstallRoot,
		Verify:      flagVerify,
		Logger:      logger,
	}
	dl, err := b.Build()
	if err != nil {
		return err
	}

	events := dl.Events()
	go logEvents(logger, events)

	logger.Info("preparing diff report")
	if err := dl.Prepare(ctx); err != nil {
		return err
	}

	space, err := dl.RequiredSpace()
	if err != nil {
		return err
	}
	logger.WithField("bytes", space).Info("required space computed")

	return dl.Download(ctx)
}

func logEvents(logger *logrus.Logger, events <-chan contentsystem.Event) {
	for ev := range events {
		switch ev.Kind {
		case contentsystem.EventDownloading:
			logger.WithFields(logrus.Fields{
				"downloaded": ev.Snapshot.Downloaded,
				"written":    ev.Snapshot.Written,
				"total":      ev.Snapshot.TotalSize,
			}).Debug("downloading")
		case contentsystem.EventFinished:
			logger.Info("finished")
			return
		}
	}
}

// fetchManifest is a thin helper for the CLI's single-URL entry point;
// the library itself never fetches a top-level manifest on the caller's
// behalf (spec §1, manifest parsing is an external collaborator).
func fetchManifest(ctx context.Context, http contentsystem.HTTPClient, url string) (*contentsystem.Manifest, error) {
	status, body, err := http.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("fetching manifest: http status %d", status)
	}
	var m contentsystem.Manifest
	if err := m.UnmarshalJSON(body); err != nil {
		return nil, err
	}
	return &m, nil
}
