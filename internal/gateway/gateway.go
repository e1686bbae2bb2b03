// Package gateway turns an upload request into a job on the OCR worker.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-ocr-gateway/internal/apperr"
	"github.com/tendant/simple-ocr-gateway/internal/bus"
	"github.com/tendant/simple-ocr-gateway/internal/upload"
	"github.com/tendant/simple-ocr-gateway/internal/validate"
	"github.com/tendant/simple-ocr-gateway/internal/worker"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

const DefaultTimeout = 5 * time.Minute

// Submitter forwards a document to the worker. *worker.Client implements it.
type Submitter interface {
	Submit(ctx context.Context, s worker.Submission) (*schema.JobRecord, error)
}

type Service struct {
	worker   Submitter
	limits   validate.Limits
	events   bus.Publisher
	subjects bus.Subjects
	timeout  time.Duration
	logger   *slog.Logger
}

type Option func(*Service)

// WithEvents publishes lifecycle events for every submission.
func WithEvents(p bus.Publisher, subjects bus.Subjects) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
			s.subjects = subjects
		}
	}
}

// WithTimeout bounds the call to the worker.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(w Submitter, limits validate.Limits, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		worker:   w,
		limits:   limits,
		events:   bus.Nop,
		subjects: bus.NewSubjects(""),
		timeout:  DefaultTimeout,
		logger:   logger.With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request is one upload as received at the boundary. When several documents
// were uploaded only the first is processed; all of them are released.
type Request struct {
	Documents     []upload.Document
	Options       string
	CorrelationID string
}

// Submit validates the request, forwards the first document to the worker
// and returns the acceptance. Every document in req is released before
// Submit returns, whatever the outcome.
func (s *Service) Submit(ctx context.Context, req Request) (*schema.Accepted, error) {
	start := time.Now()
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := s.logger.With("correlation_id", correlationID)

	defer func() {
		if err := upload.ReleaseAll(req.Documents); err != nil {
			logger.Warn("release upload failed", "err", err)
		}
	}()

	doc, ok := upload.First(req.Documents)
	if !ok {
		err := apperr.Invalid(apperr.CodeInvalidFile, "invalid file", []schema.Violation{{Field: "file", Message: "file is required"}})
		return nil, s.reject(logger, correlationID, schema.StageValidation, err, start)
	}
	if n := len(req.Documents); n > 1 {
		logger.Info("multiple files uploaded, processing the first", "count", n, "filename", doc.Filename)
	}

	mediaType := validate.NormalizeMediaType(doc.MediaType)
	if err := s.limits.File(validate.FileMeta{Filename: doc.Filename, MediaType: mediaType, Size: doc.Size}); err != nil {
		return nil, s.reject(logger, correlationID, schema.StageValidation, err, start)
	}
	opts, err := s.limits.Options(req.Options)
	if err != nil {
		return nil, s.reject(logger, correlationID, schema.StageValidation, err, start)
	}
	filename := upload.SanitizeFilename(doc.Filename)

	body, err := doc.Open()
	if err != nil {
		err = apperr.New(apperr.CodeProcessingError, "failed to read uploaded file", err)
		return nil, s.reject(logger, correlationID, schema.StageForwarding, err, start)
	}
	defer body.Close()

	fwdCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger.Info("forwarding document", "filename", filename, "media_type", mediaType, "size", doc.Size)
	rec, err := s.worker.Submit(fwdCtx, worker.Submission{
		Filename:  filename,
		MediaType: mediaType,
		Body:      body,
		Options:   opts,
		RequestID: correlationID,
	})
	if err != nil {
		err = apperr.New(apperr.CodeProcessingError, "failed to submit document for processing", err)
		return nil, s.reject(logger, correlationID, schema.StageForwarding, err, start)
	}
	if rec == nil || rec.JobID == "" || !rec.Status.Valid() {
		err = apperr.New(apperr.CodeProcessingError, "worker returned a malformed acceptance", worker.ErrMalformedReply)
		return nil, s.reject(logger, correlationID, schema.StageForwarding, err, start)
	}

	stored := opts
	if rec.Options != nil {
		stored = *rec.Options
	}
	elapsed := time.Since(start)
	accepted := &schema.Accepted{
		JobID:         rec.JobID,
		Status:        rec.Status,
		Options:       stored,
		CorrelationID: correlationID,
		DurationMs:    elapsed.Milliseconds(),
	}

	s.publish(logger, s.subjects.Submitted, schema.JobSubmitted{
		JobID:             rec.JobID,
		CorrelationID:     correlationID,
		Stage:             schema.StageAccepted,
		Status:            rec.Status,
		SanitizedFilename: filename,
		MediaType:         mediaType,
		Size:              doc.Size,
		Options:           stored,
		ProcessingTime:    elapsed.Milliseconds(),
		HappenedAt:        time.Now().Unix(),
	})
	logger.Info("job submitted", "job_id", rec.JobID, "status", rec.Status, "elapsed_ms", elapsed.Milliseconds())
	return accepted, nil
}

func (s *Service) reject(logger *slog.Logger, correlationID string, stage schema.SubmissionStage, err error, start time.Time) error {
	e := apperr.As(err)
	failure := schema.FailureTypeTransport
	if e.Code.Kind() == apperr.KindValidation {
		failure = schema.FailureTypeValidation
	}
	elapsed := time.Since(start).Milliseconds()
	if failure == schema.FailureTypeValidation {
		logger.Warn("submission rejected", "stage", stage, "code", e.Code, "details", e.Details, "elapsed_ms", elapsed)
	} else {
		logger.Error("submission failed", "stage", stage, "code", e.Code, "err", err, "elapsed_ms", elapsed)
	}
	s.publish(logger, s.subjects.Rejected, schema.SubmissionRejected{
		CorrelationID:  correlationID,
		Stage:          stage,
		Code:           string(e.Code),
		Error:          e.Message,
		FailureType:    failure,
		ProcessingTime: elapsed,
		HappenedAt:     time.Now().Unix(),
	})
	return e
}

func (s *Service) publish(logger *slog.Logger, subject string, event any) {
	if err := s.events.PublishJSON(subject, event); err != nil {
		logger.Error("publish lifecycle event failed", "subject", subject, "err", err)
	}
}
