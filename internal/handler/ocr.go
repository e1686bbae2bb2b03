package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tendant/simple-ocr-gateway/internal/apperr"
	"github.com/tendant/simple-ocr-gateway/internal/gateway"
	"github.com/tendant/simple-ocr-gateway/internal/reqctx"
	"github.com/tendant/simple-ocr-gateway/internal/respond"
	"github.com/tendant/simple-ocr-gateway/internal/upload"
	"github.com/tendant/simple-ocr-gateway/internal/validate"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

const (
	DefaultMultipartMemory = 8 << 20
	// multipartOverhead is the room left for boundaries, headers and the
	// options field on top of the file size limit.
	multipartOverhead = 1 << 20
)

// Form fields read from a submission. Only the first file is processed.
var fileFields = []string{"file", "files"}

type Submitter interface {
	Submit(ctx context.Context, req gateway.Request) (*schema.Accepted, error)
}

type Querier interface {
	Status(ctx context.Context, jobID string) (*schema.JobRecord, error)
	Result(ctx context.Context, jobID string) (*schema.JobRecord, error)
}

type OCRHandler struct {
	submitter       Submitter
	querier         Querier
	limits          validate.Limits
	multipartMemory int64
	logger          *slog.Logger
}

func NewOCRHandler(s Submitter, q Querier, limits validate.Limits, multipartMemory int64, logger *slog.Logger) *OCRHandler {
	if multipartMemory <= 0 {
		multipartMemory = DefaultMultipartMemory
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRHandler{
		submitter:       s,
		querier:         q,
		limits:          limits,
		multipartMemory: multipartMemory,
		logger:          logger.With("component", "http"),
	}
}

// Process accepts a multipart upload and answers 202 with the job id.
func (h *OCRHandler) Process(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.MaxFileSize+multipartOverhead)

	if err := c.Request.ParseMultipartForm(h.multipartMemory); err != nil {
		respond.Fail(c, h.formError(err))
		return
	}
	form := c.Request.MultipartForm
	docs := upload.FromForm(form, fileFields...)
	if len(docs) == 0 {
		// Nothing for the gateway to release; drop the form's temp files here.
		_ = form.RemoveAll()
	} else if err := upload.ResolveMediaType(&docs[0]); err != nil {
		h.logger.Warn("media type detection failed", "filename", docs[0].Filename, "err", err)
	}

	correlationID := strings.TrimSpace(c.Request.FormValue("requestId"))
	if correlationID == "" {
		correlationID = reqctx.RequestID(c.Request.Context())
	}

	accepted, err := h.submitter.Submit(c.Request.Context(), gateway.Request{
		Documents:     docs,
		Options:       c.Request.FormValue("options"),
		CorrelationID: correlationID,
	})
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusAccepted, accepted)
}

func (h *OCRHandler) formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return h.limits.Oversize()
	}
	msg := "malformed multipart request"
	if errors.Is(err, http.ErrNotMultipart) {
		msg = "request must be multipart/form-data"
	}
	return apperr.Invalid(apperr.CodeInvalidFile, "invalid file", []schema.Violation{{Field: "file", Message: msg}})
}

func (h *OCRHandler) Status(c *gin.Context) {
	rec, err := h.querier.Status(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusOK, rec)
}

func (h *OCRHandler) Result(c *gin.Context) {
	rec, err := h.querier.Result(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusOK, rec)
}
