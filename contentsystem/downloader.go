package contentsystem

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	defaultFilePermits  = 3
	defaultChunkPermits = 6
	buildMarkerName     = ".gog-warp-build"
	tempStagingDirName  = "!Temp"
)

// Builder assembles a Downloader from the options enumerated in spec §6
// ("Builder options"). At least one of Manifest or DependencyIDs must be
// supplied, and both may be; UpgradeFrom+PrevBuildID are optional and
// together enable patch-aware updates.
type Builder struct {
	Core *Core

	Manifest *Manifest
	BuildID  string

	UpgradeFrom *Manifest
	PrevBuildID string

	Language    string
	OldLanguage string
	DLCs        []string
	OldDLCs     []string

	DependencyIDs      []string
	GlobalDependencies bool

	InstallRoot string
	InstallPath string
	SupportRoot string

	Verify bool

	Logger *logrus.Logger
}

// Build validates required fields and constructs a fresh (Prepared-able)
// Downloader, or returns a DownloaderBuilder error naming the first
// missing field (spec §7).
func (b *Builder) Build() (*Downloader, error) {
	if b.Core == nil {
		return nil, dbuilderError("core")
	}
	if b.Manifest == nil && len(b.DependencyIDs) == 0 {
		return nil, dbuilderError("manifest or dependency_ids")
	}
	if b.Manifest != nil && b.InstallRoot == "" && b.InstallPath == "" {
		return nil, dbuilderError("install_root or install_path")
	}

	language := b.Language
	if language == "" {
		language = "en-US"
	}
	oldLanguage := b.OldLanguage
	if oldLanguage == "" {
		oldLanguage = "en-US"
	}

	installPath := b.InstallPath
	if installPath == "" && b.Manifest != nil {
		installPath = filepath.Join(b.InstallRoot, b.Manifest.InstallDirectory())
	}

	supportRoot := b.SupportRoot
	if supportRoot == "" {
		supportRoot = filepath.Join(installPath, "gog-support")
		if b.Manifest != nil && b.Manifest.Generation() == GenV2 {
			supportRoot = filepath.Join(supportRoot, b.Manifest.BaseProductID())
		}
	}

	logger := b.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Downloader{
		core:               b.Core,
		manifest:           b.Manifest,
		buildID:            b.BuildID,
		upgradeFrom:        b.UpgradeFrom,
		prevBuildID:        b.PrevBuildID,
		language:           language,
		oldLanguage:        oldLanguage,
		dlcs:               b.DLCs,
		oldDLCs:            b.OldDLCs,
		dependencyIDs:      b.DependencyIDs,
		globalDependencies: b.GlobalDependencies,
		installPath:        installPath,
		supportRoot:        supportRoot,
		verify:             b.Verify,
		linkCache:          newSecureLinkCache(b.Core.Links),
		fileSem:            semaphore.NewWeighted(defaultFilePermits),
		chunkSem:           semaphore.NewWeighted(defaultChunkPermits),
		logger:             logger,
		runID:              uuid.NewString(),
	}, nil
}

// Downloader is the state machine of spec §4.7: Fresh -> prepare() ->
// Prepared -> download() -> Allocating -> Downloading -> Finalizing ->
// Done, with verify()/resume folded into Allocating.
type Downloader struct {
	core *Core

	manifest    *Manifest
	buildID     string
	upgradeFrom *Manifest
	prevBuildID string

	language, oldLanguage string
	dlcs, oldDLCs         []string

	dependencyIDs      []string
	globalDependencies bool

	installPath string
	supportRoot string
	verify      bool

	linkCache *secureLinkCache
	fileSem   *semaphore.Weighted
	chunkSem  *semaphore.Weighted
	logger    *logrus.Logger

	// runID tags this Downloader's "prepared diff report" log line so it
	// can be correlated across a Prepare/Download cycle.
	runID string

	mu       sync.Mutex
	prepared bool
	report   DiffReport

	cancel   context.CancelFunc
	reporter *progressReporter
}

// stagingRoot returns the directory finalize steps write into before
// promotion: installPath itself for a fresh install, or a `!Temp`
// subdirectory when upgrading an existing tree (spec §3 invariant).
func (d *Downloader) stagingRoot() string {
	if d.upgradeFrom != nil {
		return filepath.Join(d.installPath, tempStagingDirName)
	}
	return d.installPath
}

// Prepare fetches new/old/dependency/patch depots and computes the
// DiffReport (spec §4.7 "prepare").
func (d *Downloader) Prepare(ctx context.Context) error {
	var newLists, oldLists, patchLists []FileList

	if d.manifest != nil {
		lists, err := GetDepots(ctx, d.core.HTTP, d.core.Links, d.core.BearerToken, d.manifest, d.language, d.dlcs)
		if err != nil {
			return err
		}
		newLists = append(newLists, lists...)
	}
	if d.upgradeFrom != nil {
		lists, err := GetDepots(ctx, d.core.HTTP, d.core.Links, d.core.BearerToken, d.upgradeFrom, d.oldLanguage, d.oldDLCs)
		if err != nil {
			return err
		}
		oldLists = append(oldLists, lists...)
	}
	if len(d.dependencyIDs) > 0 {
		lists, err := GetDependencies(ctx, d.core.HTTP, d.core.Links, d.dependencyIDs)
		if err != nil {
			return err
		}
		newLists = append(newLists, lists...)
	}

	if d.manifest != nil && d.upgradeFrom != nil &&
		d.manifest.Generation() == GenV2 && d.upgradeFrom.Generation() == GenV2 &&
		d.buildID != "" && d.prevBuildID != "" {
		products := append([]string{d.manifest.BaseProductID()}, d.manifest.DLCIDs()...)
		for _, productID := range products {
			fl, err := GetPatch(ctx, d.core.HTTP, d.core.Links, productID, d.prevBuildID, d.buildID)
			if err != nil {
				return err
			}
			if fl != nil {
				patchLists = append(patchLists, *fl)
			}
		}
	}

	report := Diff(newLists, oldLists, patchLists)

	d.mu.Lock()
	d.report = report
	d.prepared = true
	d.mu.Unlock()

	d.logger.WithFields(logrus.Fields{
		"run_id":    d.runID,
		"downloads": len(report.Download),
		"patches":   len(report.Patches),
		"deleted":   len(report.Deleted),
	}).Info("prepared diff report")
	return nil
}

// RequiredSpace reports the bytes that must still be written to bring
// the staging tree up to date, per spec §4.7 "required_space".
func (d *Downloader) RequiredSpace() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.prepared {
		return 0, notReadyError("prepare has not run")
	}
	root := d.stagingRoot()
	return RequiredSpace(d.report, func(path string) FileStatus {
		return FileStatusOf(filepath.Join(root, path))
	}), nil
}

// Events returns the channel progress events are published on. Must be
// called before Download to avoid missing early events.
func (d *Downloader) Events() <-chan Event {
	if d.reporter == nil {
		d.reporter = newProgressReporter(0, 0)
	}
	return d.reporter.events
}

// Cancel trips the cancellation token; in-flight worker tasks abort and
// Download returns a Cancelled error. Partial sidecars remain on disk
// for a later resume (spec §5).
func (d *Downloader) Cancel() {
	if d.cancel != nil {
		d.cancel()
	}
}

// Download runs Allocating -> Downloading -> Finalizing to Done (spec
// §4.7 "download"). It must be called after Prepare.
func (d *Downloader) Download(ctx context.Context) error {
	d.mu.Lock()
	if !d.prepared {
		d.mu.Unlock()
		return notReadyError("prepare has not run")
	}
	report := d.report
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	root := d.stagingRoot()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return ioError(err)
	}

	markerPath := filepath.Join(root, buildMarkerName)
	if existing, err := os.ReadFile(markerPath); err == nil && string(existing) != d.buildID {
		d.verify = true
	}
	if err := os.WriteFile(markerPath, []byte(d.buildID), 0o644); err != nil {
		return ioError(err)
	}

	if d.reporter == nil {
		d.reporter = newProgressReporter(totalDownloadSize(report), totalSize(report))
	} else {
		d.reporter.counters.mu.Lock()
		d.reporter.counters.snapshot.TotalDownloadSize = totalDownloadSize(report)
		d.reporter.counters.snapshot.TotalSize = totalSize(report)
		d.reporter.counters.mu.Unlock()
	}
	go d.reporter.run()
	defer d.reporter.finish()

	if d.verify {
		d.reporter.emit(Event{Kind: EventVerifying, Fraction: 0})
		if err := d.verifyEntries(root, report); err != nil {
			return err
		}
	}

	d.reporter.emit(Event{Kind: EventAllocating, Fraction: 0})
	if err := d.allocateAndDownload(ctx, root, report); err != nil {
		return err
	}

	if err := d.extractSFCs(root, report); err != nil {
		return err
	}
	if err := d.applyPatches(ctx, root, report); err != nil {
		return err
	}
	if d.upgradeFrom != nil {
		if err := d.promote(root); err != nil {
			return err
		}
		if err := os.RemoveAll(root); err != nil {
			return ioError(err)
		}
		markerPath = filepath.Join(d.installPath, buildMarkerName)
	}
	if err := d.deleteRemoved(report); err != nil {
		return err
	}

	os.Remove(markerPath)
	return nil
}

func totalDownloadSize(report DiffReport) int64 {
	var total int64
	for _, fl := range report.Download {
		for _, e := range fl.Files {
			total += e.CompressedSize()
		}
	}
	for _, p := range report.Patches {
		for _, c := range p.Diff.Chunks {
			total += int64(c.CompressedSize)
		}
	}
	return total
}

func totalSize(report DiffReport) int64 {
	var total int64
	for _, fl := range report.Download {
		for _, e := range fl.Files {
			total += e.Size()
		}
	}
	for _, p := range report.Patches {
		total += p.Destination.Size()
	}
	return total
}

// verifyEntries re-validates every already-materialized tracked file,
// SFC blob and downloaded-but-unapplied patch diff against its expected
// hashes before allocation, demoting or removing anything corrupt so
// allocateAndDownload's status classification re-fetches exactly the
// chunks that no longer check out (spec §4.9).
func (d *Downloader) verifyEntries(root string, report DiffReport) error {
	for _, fl := range report.Download {
		for _, e := range fl.Files {
			destPath := filepath.Join(root, e.Path())
			switch FileStatusOf(destPath) {
			case StatusDone:
				if _, err := VerifyFile(e, destPath); err != nil {
					return err
				}
			case StatusPartial:
				chunks := e.v2Chunks()
				if len(chunks) > 1 {
					if err := VerifyPartial(chunks, destPath+".download", destPath+".state"); err != nil {
						return err
					}
				}
			}
		}
		if fl.SFC != nil {
			blobPath := filepath.Join(root, fl.SFC.Chunks[0].MD5)
			if FileStatusOf(blobPath) == StatusDone {
				if _, err := VerifySFC(fl.SFC, blobPath); err != nil {
					return err
				}
			}
		}
	}

	for _, p := range report.Patches {
		diffPath := filepath.Join(root, p.Destination.Path()+".diff")
		if _, err := os.Stat(diffPath); err == nil {
			if _, err := VerifyPatchDownloaded(&p.Diff, diffPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// endpointsFor resolves the signed endpoint set a download should use:
// the dedicated public dependencies bucket for dependency-depot
// entries, or the per-product bucket for everything else (spec §4.2,
// §6).
func (d *Downloader) endpointsFor(ctx context.Context, productID string, isDependency bool, gen ManifestGeneration, kind string) ([]Endpoint, error) {
	if isDependency {
		return d.linkCache.GetDependencies(ctx)
	}
	return d.linkCache.Get(ctx, gen, productID, "", "main", d.core.BearerToken, kind)
}

// allocateAndDownload classifies every tracked file's on-disk status and
// spawns worker tasks for everything not already complete (spec §4.7
// items 1, 3, 4).
func (d *Downloader) allocateAndDownload(ctx context.Context, root string, report DiffReport) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, fl := range report.Download {
		fl := fl
		for _, e := range fl.Files {
			e := e
			destPath := filepath.Join(root, e.Path())
			status := FileStatusOf(destPath)
			if status == StatusDone {
				d.reporter.counters.addDownloaded(e.CompressedSize())
				d.reporter.counters.addWritten(e.Size())
				continue
			}

			if err := d.fileSem.Acquire(gctx, 1); err != nil {
				return cancelledError()
			}
			g.Go(func() error {
				defer d.fileSem.Release(1)
				return d.downloadEntry(gctx, fl.ProductID, fl.IsDependency, e, destPath)
			})
		}

		if fl.SFC != nil {
			blobPath := filepath.Join(root, fl.SFC.Chunks[0].MD5)
			if FileStatusOf(blobPath) != StatusDone {
				if err := d.fileSem.Acquire(gctx, 1); err != nil {
					return cancelledError()
				}
				g.Go(func() error {
					defer d.fileSem.Release(1)
					return d.downloadSFC(gctx, fl, blobPath)
				})
			}
		}
	}

	for _, p := range report.Patches {
		p := p
		diffPath := filepath.Join(root, p.Destination.Path()+".diff")
		if _, err := os.Stat(diffPath); err == nil {
			continue
		}
		if err := d.fileSem.Acquire(gctx, 1); err != nil {
			return cancelledError()
		}
		g.Go(func() error {
			defer d.fileSem.Release(1)
			return d.downloadPatch(gctx, p, diffPath)
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return cancelledError()
		}
		return err
	}
	return nil
}

func (d *Downloader) downloadEntry(ctx context.Context, productID string, isDependency bool, e DepotEntry, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return ioError(err)
	}

	if e.V2 != nil && e.V2.File != nil && e.V2.File.SFCRef != nil {
		// Bytes come from the SFC blob; handled by downloadSFC/extractSFCs instead.
		return nil
	}

	endpoints, err := d.endpointsFor(ctx, productID, isDependency, e.generation(), "")
	if err != nil {
		return err
	}
	ep := bestEndpoint(endpoints, uint32(e.generation()))
	if ep == nil {
		return notReadyError("no endpoint available")
	}

	if e.V1 != nil {
		return downloadV1(ctx, d.core.HTTP, *ep, e.V1.File, destPath, d.reporter.counters)
	}
	return downloadV2(ctx, d.core.HTTP, *ep, e.v2Chunks(), destPath, d.chunkSem, d.reporter.counters)
}

// downloadSFC fetches a product's Small-Files-Container blob once, so
// that extractSFCs can later slice every referencing file's byte range
// out of it (spec §4.7 item 6).
func (d *Downloader) downloadSFC(ctx context.Context, fl FileList, blobPath string) error {
	endpoints, err := d.endpointsFor(ctx, fl.ProductID, fl.IsDependency, GenV2, "")
	if err != nil {
		return err
	}
	ep := bestEndpoint(endpoints, uint32(GenV2))
	if ep == nil {
		return notReadyError("no endpoint available")
	}
	return downloadV2(ctx, d.core.HTTP, *ep, fl.SFC.Chunks, blobPath, d.chunkSem, d.reporter.counters)
}

func (d *Downloader) downloadPatch(ctx context.Context, p PatchTarget, diffPath string) error {
	endpoints, err := d.linkCache.Get(ctx, GenV2, p.ProductID, "", "main", d.core.BearerToken, "patch")
	if err != nil {
		return err
	}
	ep := bestEndpoint(endpoints, 2)
	if ep == nil {
		return notReadyError("no endpoint available for patch")
	}
	return downloadV2(ctx, d.core.HTTP, *ep, p.Diff.Chunks, diffPath, d.chunkSem, d.reporter.counters)
}

// extractSFCs reads each small file's byte range out of its product's
// decompressed SFC blob and writes it to that file's .download sidecar,
// then renames it into place (spec §4.7 item 6).
func (d *Downloader) extractSFCs(root string, report DiffReport) error {
	for _, fl := range report.Download {
		if fl.SFC == nil {
			continue
		}
		blobHash := fl.SFC.Chunks[0].MD5
		blobPath := filepath.Join(root, blobHash)
		if _, err := os.Stat(blobPath); err != nil {
			continue
		}
		blob, err := os.Open(blobPath)
		if err != nil {
			return ioError(err)
		}
		for _, e := range fl.Files {
			if e.V2 == nil || e.V2.File == nil || e.V2.File.SFCRef == nil {
				continue
			}
			ref := e.V2.File.SFCRef
			destPath := filepath.Join(root, e.Path())
			downloadPath := destPath + ".download"
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				blob.Close()
				return ioError(err)
			}
			buf := make([]byte, ref.Size)
			if _, err := blob.ReadAt(buf, int64(ref.Offset)); err != nil {
				blob.Close()
				return ioError(err)
			}
			if err := os.WriteFile(downloadPath, buf, 0o644); err != nil {
				blob.Close()
				return ioError(err)
			}
			if err := os.Rename(downloadPath, destPath); err != nil {
				blob.Close()
				return ioError(err)
			}
		}
		blob.Close()
		os.Remove(blobPath)
	}
	return nil
}

// applyPatches runs xdelta3 for every prepared patch target and
// atomically promotes its result (spec §4.7 item 7).
func (d *Downloader) applyPatches(ctx context.Context, root string, report DiffReport) error {
	for _, p := range report.Patches {
		destPath := filepath.Join(root, p.Destination.Path())
		sourcePath := filepath.Join(root, normalizePath(p.Diff.SourcePath))
		diffPath := destPath + ".diff"
		patchedPath := destPath + ".patched"

		if _, err := os.Stat(destPath); err == nil {
			continue // already applied
		}

		err := ApplyPatch(sourcePath, diffPath, patchedPath, func(n int) error {
			d.reporter.counters.addWritten(int64(n))
			return nil
		})
		if err != nil {
			return err
		}
		if err := os.Rename(patchedPath, destPath); err != nil {
			return ioError(err)
		}
		os.Remove(diffPath)
	}
	return nil
}

// promote renames every finalized staging file from the `!Temp` root
// to its destination path (spec §4.7 item 8). Download removes `!Temp`
// recursively once promote returns.
func (d *Downloader) promote(tempRoot string) error {
	return filepath.Walk(tempRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if filepath.Base(path) == buildMarkerName {
			return nil
		}
		rel, err := filepath.Rel(tempRoot, path)
		if err != nil {
			return ioError(err)
		}
		dest := filepath.Join(d.installPath, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return ioError(err)
		}
		if err := os.Rename(path, dest); err != nil {
			return ioError(err)
		}
		return nil
	})
}

// deleteRemoved removes every path the diff engine classified as
// deleted, if it still exists (spec §4.7 item 9).
func (d *Downloader) deleteRemoved(report DiffReport) error {
	for _, path := range report.Deleted {
		full := filepath.Join(d.installPath, path)
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return ioError(err)
		}
	}
	return nil
}

func (e DepotEntry) generation() ManifestGeneration {
	if e.V1 != nil {
		return GenV1
	}
	return GenV2
}
