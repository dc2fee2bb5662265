package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/you-humble/docsort/internal/domain"
)

func (p *Pipeline) executeSplit(ctx context.Context, identity domain.FileIdentity, res domain.ProcessResult) domain.ProcessResult {
	job, err := p.remote.SubmitSplit(ctx, identity.Path, p.cfg.SplitMode)
	if err != nil {
		res.Err = fmt.Errorf("submit split: %w", err)
		return res
	}

	slog.Info("split job submitted",
		slog.String("path", identity.Path),
		slog.String("job_id", job.JobID),
	)

	final, err := p.awaitJob(ctx, job)
	if err != nil {
		res.Err = err
		return res
	}

	outputs := make([]string, 0, len(final.Documents))
	for _, doc := range final.Documents {
		dst := uniqueDest(filepath.Join(p.cfg.OutputDir, filepath.Base(doc.Filename)))
		if err := p.remote.DownloadDocument(ctx, doc.DownloadURL, dst); err != nil {
			// No partial artifacts: remove everything downloaded so far.
			removeOutputs(outputs)
			res.Err = fmt.Errorf("download %s: %w", doc.Filename, err)
			return res
		}
		outputs = append(outputs, dst)
	}

	if p.cfg.DeleteSource {
		if err := os.Remove(identity.Path); err != nil {
			slog.Warn("delete split source",
				slog.String("path", identity.Path),
				slog.String("error", err.Error()),
			)
		}
	}

	res.Outputs = outputs
	res.OutputCount = len(outputs)
	res.Success = true
	slog.Info("split job done",
		slog.String("job_id", final.JobID),
		slog.Int("documents", len(outputs)),
	)
	return res
}

// awaitJob polls the job until it reaches a terminal status or the attempt
// ceiling. Transient poll errors consume an attempt and keep polling.
func (p *Pipeline) awaitJob(ctx context.Context, job domain.SplitJob) (domain.SplitJob, error) {
	for attempt := 0; attempt < p.cfg.MaxPollAttempts; attempt++ {
		done, err := splitTerminal(job)
		if done {
			return job, err
		}
		if job.Status == domain.JobProcessing && job.Progress > 0 {
			slog.Debug("split job in progress",
				slog.String("job_id", job.JobID),
				slog.Int("progress", job.Progress),
			)
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}

		next, err := p.remote.JobStatus(ctx, job.StatusURL)
		if err != nil {
			slog.Warn("split job status poll",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
			continue
		}
		job = next
	}

	if done, err := splitTerminal(job); done {
		return job, err
	}
	return job, domain.Permanent(
		fmt.Errorf("split job %s timed out after %d polls", job.JobID, p.cfg.MaxPollAttempts))
}

// splitTerminal reports whether the job reached a terminal status and, for a
// failed job, the error to surface. Pending and processing keep polling.
func splitTerminal(job domain.SplitJob) (bool, error) {
	switch job.Status {
	case domain.JobCompleted:
		return true, nil
	case domain.JobFailed:
		msg := job.Error
		if msg == "" {
			msg = "split job failed"
		}
		return true, domain.Permanent(errors.New(msg))
	default:
		return false, nil
	}
}

func removeOutputs(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			slog.Warn("remove partial output",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}
