package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/you-humble/docsort/internal/domain"
)

// RemoteService is the document-processing capability the pipeline consumes.
type RemoteService interface {
	SubmitRename(ctx context.Context, path string) (domain.RenameSuggestion, error)
	SubmitSplit(ctx context.Context, path, mode string) (domain.SplitJob, error)
	JobStatus(ctx context.Context, statusURL string) (domain.SplitJob, error)
	DownloadDocument(ctx context.Context, url, destPath string) error
}

// ProcessedIndex remembers content hashes of already-processed files.
type ProcessedIndex interface {
	Seen(ctx context.Context, hash string) (bool, error)
	Mark(ctx context.Context, id domain.FileIdentity, dest string) error
}

// Archiver accepts produced files for best-effort replication.
type Archiver interface {
	Enqueue(path string) bool
}

type Config struct {
	OutputDir      string
	FailedDir      string
	PassthroughDir string

	// Passthrough routes unprocessable files, under their unchanged name,
	// to PassthroughDir instead of FailedDir so a downstream stage is never
	// starved.
	Passthrough bool
	DryRun      bool

	ApplyRename    bool
	RenameMaxBytes int64

	SplitEnabled    bool
	SplitMode       string
	SplitMaxBytes   int64
	PollInterval    time.Duration
	MaxPollAttempts int
	DeleteSource    bool
}

// Pipeline turns a ready file into a terminal ProcessResult: rename or split
// via the remote service, then route the outcome.
type Pipeline struct {
	cfg      Config
	remote   RemoteService
	index    ProcessedIndex
	archiver Archiver
}

func New(cfg Config, remote RemoteService, index ProcessedIndex, archiver Archiver) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		remote:   remote,
		index:    index,
		archiver: archiver,
	}
}

// Execute processes one file and always returns a terminal result; errors
// never escape the task boundary.
func (p *Pipeline) Execute(ctx context.Context, path string) domain.ProcessResult {
	res := domain.ProcessResult{Path: path}

	split := p.splitEligible(path)

	identity, err := p.captureIdentity(path)
	if err != nil {
		return p.fail(res, domain.Permanent(err))
	}

	ceiling := p.cfg.RenameMaxBytes
	if split {
		ceiling = p.cfg.SplitMaxBytes
	}
	if ceiling > 0 && identity.Size > ceiling {
		return p.fail(res, domain.Permanent(
			fmt.Errorf("file too large: %d bytes, limit %d", identity.Size, ceiling)))
	}

	if p.cfg.DryRun {
		res.Success = true
		slog.Info("dry run, no action taken",
			slog.String("path", path),
			slog.Bool("split", split),
			slog.Int64("size", identity.Size),
		)
		return res
	}

	if p.index != nil && identity.HashSHA != "" {
		seen, err := p.index.Seen(ctx, identity.HashSHA)
		if err != nil {
			slog.Warn("processed index lookup",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		} else if seen {
			res.Success = true
			slog.Info("skipping already-processed file", slog.String("path", path))
			return res
		}
	}

	if split {
		res = p.executeSplit(ctx, identity, res)
	} else {
		res = p.executeRename(ctx, identity, res)
	}

	if !res.Success {
		return p.fail(res, res.Err)
	}

	if p.index != nil && identity.HashSHA != "" {
		if err := p.index.Mark(ctx, identity, res.DestPath); err != nil {
			slog.Warn("processed index update",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
	p.archiveOutputs(res)

	return res
}

// splitEligible reports whether path takes the two-phase split protocol.
// Only one document type is recognized for splitting.
func (p *Pipeline) splitEligible(path string) bool {
	return p.cfg.SplitEnabled && strings.EqualFold(filepath.Ext(path), ".pdf")
}

func (p *Pipeline) captureIdentity(path string) (domain.FileIdentity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.FileIdentity{}, fmt.Errorf("stat: %w", err)
	}
	if !info.Mode().IsRegular() {
		return domain.FileIdentity{}, fmt.Errorf("not a regular file: %s", path)
	}

	identity := domain.FileIdentity{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if p.index != nil {
		hash, err := hashFile(path)
		if err != nil {
			return domain.FileIdentity{}, err
		}
		identity.HashSHA = hash
	}
	return identity, nil
}

func (p *Pipeline) executeRename(ctx context.Context, identity domain.FileIdentity, res domain.ProcessResult) domain.ProcessResult {
	suggestion, err := p.remote.SubmitRename(ctx, identity.Path)
	if err != nil {
		res.Err = fmt.Errorf("submit rename: %w", err)
		return res
	}
	res.SuggestedName = suggestion.SuggestedFilename

	if !p.cfg.ApplyRename {
		res.Success = true
		slog.Info("rename suggested",
			slog.String("path", identity.Path),
			slog.String("suggested", suggestion.SuggestedFilename),
		)
		return res
	}

	destDir := p.cfg.OutputDir
	if suggestion.FolderPath != "" {
		destDir = filepath.Join(destDir, suggestion.FolderPath)
	}
	dst := uniqueDest(filepath.Join(destDir, suggestion.SuggestedFilename))

	if err := moveFile(identity.Path, dst); err != nil {
		res.Err = domain.Permanent(fmt.Errorf("move to destination: %w", err))
		return res
	}

	res.DestPath = dst
	res.Success = true
	slog.Info("file renamed",
		slog.String("path", identity.Path),
		slog.String("dest", dst),
	)
	return res
}

// fail records err on the result. Only permanent failures route the source
// file away; a transient error leaves it in place so the queue can retry the
// same path.
func (p *Pipeline) fail(res domain.ProcessResult, err error) domain.ProcessResult {
	res.Success = false
	res.Err = err

	slog.Error("processing failed",
		slog.String("path", res.Path),
		slog.String("error", err.Error()),
	)

	if !domain.IsPermanent(err) {
		return res
	}
	if dest := p.RouteFailure(res.Path); dest != "" {
		res.DestPath = dest
	}
	return res
}

// RouteFailure moves a terminally failed file to the failed or pass-through
// directory when one is configured, returning the destination. The queue
// calls it once retries are exhausted; the source may already be gone, in
// which case routing is skipped.
func (p *Pipeline) RouteFailure(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}

	routed, err := p.routeFailure(path)
	if err != nil {
		slog.Error("failure routing",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return ""
	}
	if routed != "" {
		slog.Info("file routed after failure",
			slog.String("path", path),
			slog.String("dest", routed),
		)
	}
	return routed
}

func (p *Pipeline) routeFailure(path string) (string, error) {
	if p.cfg.Passthrough {
		if p.cfg.PassthroughDir == "" {
			return "", nil
		}
		dst := uniqueDest(filepath.Join(p.cfg.PassthroughDir, filepath.Base(path)))
		return dst, moveFile(path, dst)
	}

	if p.cfg.FailedDir == "" {
		return "", nil
	}
	name := time.Now().Format("20060102T150405") + "_" + filepath.Base(path)
	dst := uniqueDest(filepath.Join(p.cfg.FailedDir, name))
	return dst, copyThenDelete(path, dst)
}

func (p *Pipeline) archiveOutputs(res domain.ProcessResult) {
	if p.archiver == nil {
		return
	}
	targets := res.Outputs
	if res.DestPath != "" {
		targets = append(targets, res.DestPath)
	}
	for _, out := range targets {
		if !p.archiver.Enqueue(out) {
			slog.Warn("archive queue full, output not replicated",
				slog.String("path", out),
			)
		}
	}
}
