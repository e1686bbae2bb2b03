// Package query answers status and result reads for jobs held by the worker.
package query

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/tendant/simple-ocr-gateway/internal/apperr"
	"github.com/tendant/simple-ocr-gateway/internal/reqctx"
	"github.com/tendant/simple-ocr-gateway/internal/worker"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

const DefaultTimeout = 5 * time.Minute

// Registry reads job records. *worker.Client implements it.
type Registry interface {
	Status(ctx context.Context, jobID string) (*schema.JobRecord, error)
	Result(ctx context.Context, jobID string) (*schema.JobRecord, error)
}

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

// ValidJobID reports whether id is safe to use as a registry key in a URL
// path segment.
func ValidJobID(id string) bool {
	return jobIDPattern.MatchString(id)
}

type Service struct {
	registry Registry
	timeout  time.Duration
	logger   *slog.Logger
}

func New(r Registry, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: r, timeout: timeout, logger: logger.With("component", "query")}
}

// Status returns the current record of a job.
func (s *Service) Status(ctx context.Context, jobID string) (*schema.JobRecord, error) {
	return s.read(ctx, "status", jobID, apperr.CodeStatusCheckError, s.registry.Status)
}

// Result returns the record of a job including its result once completed.
// A job that has not finished is returned as is.
func (s *Service) Result(ctx context.Context, jobID string) (*schema.JobRecord, error) {
	return s.read(ctx, "result", jobID, apperr.CodeResultFetchError, s.registry.Result)
}

type readFunc func(ctx context.Context, jobID string) (*schema.JobRecord, error)

func (s *Service) read(ctx context.Context, op, jobID string, failure apperr.Code, fn readFunc) (*schema.JobRecord, error) {
	start := time.Now()
	logger := s.logger.With("op", op, "job_id", jobID, "correlation_id", reqctx.RequestID(ctx))

	if !ValidJobID(jobID) {
		logger.Warn("rejected job id", "elapsed_ms", time.Since(start).Milliseconds())
		return nil, apperr.Invalid(apperr.CodeInvalidJobID, "invalid job id", []schema.Violation{{
			Field:   "jobId",
			Message: "must be 1-128 letters, digits, '.', '_', ':' or '-'",
		}})
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := fn(ctx, jobID)
	elapsed := time.Since(start).Milliseconds()
	switch {
	case errors.Is(err, worker.ErrJobNotFound):
		logger.Warn("job not found", "elapsed_ms", elapsed)
		return nil, apperr.New(apperr.CodeJobNotFound, "job "+jobID+" not found", err)
	case err != nil:
		logger.Error("job read failed", "err", err, "elapsed_ms", elapsed)
		msg := "failed to check job status"
		if failure == apperr.CodeResultFetchError {
			msg = "failed to fetch job result"
		}
		return nil, apperr.New(failure, msg, err)
	}
	logger.Info("job read", "status", rec.Status, "elapsed_ms", elapsed)
	return rec, nil
}
