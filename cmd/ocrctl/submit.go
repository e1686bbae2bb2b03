package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-ocr-gateway/internal/reqctx"
	"github.com/tendant/simple-ocr-gateway/internal/upload"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

var submitFlags struct {
	pageRange             string
	maxOutputTokens       int
	includeImages         bool
	includeHeadersFooters bool
	format                string
	stdinName             string
	stdinType             string
	parallel              int
	wait                  bool
	poll                  pollFlags
}

// submission is printed once per file.
type submission struct {
	File     string            `json:"file"`
	Accepted *schema.Accepted  `json:"accepted,omitempty"`
	Job      *schema.JobRecord `json:"job,omitempty"`
	State    string            `json:"state,omitempty"`
	Error    string            `json:"error,omitempty"`
}

var submitCmd = &cobra.Command{
	Use:   "submit <file>... | -",
	Short: "Upload documents for OCR; '-' reads one document from stdin",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		options, err := optionsJSON(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		results := make([]submission, len(args))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(submitFlags.parallel, 1))
		for i, path := range args {
			g.Go(func() error {
				results[i] = submitOne(gctx, cmd.InOrStdin(), path, options)
				return nil
			})
		}
		_ = g.Wait()

		failed := 0
		for _, r := range results {
			if r.Error != "" {
				failed++
			}
		}
		out := any(results)
		if len(results) == 1 {
			out = results[0]
		}
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d submissions failed", failed, len(results))
		}
		return nil
	},
}

func submitOne(ctx context.Context, stdin io.Reader, path, options string) submission {
	res := submission{File: path}
	doc, err := openDocument(stdin, path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer doc.Release()

	ctx = reqctx.WithRequestID(ctx, uuid.NewString())
	acc, err := api.Submit(ctx, doc, options)
	if err != nil {
		logger.Error("submit failed", "file", path, "err", err)
		res.Error = err.Error()
		return res
	}
	res.Accepted = acc
	logger.Info("submitted", "file", path, "job_id", acc.JobID, "status", acc.Status)
	if !submitFlags.wait {
		return res
	}

	out, err := submitFlags.poll.poller().Poll(ctx, acc.JobID)
	if out != nil {
		res.Job = out.Job
		res.State = string(out.State)
	}
	if err == nil && out != nil {
		err = out.Err()
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// openDocument spools stdin to a temp file; paths are read in place and the
// media type is detected from content.
func openDocument(stdin io.Reader, path string) (upload.Document, error) {
	if path == "-" {
		return upload.Spool(stdin, "", submitFlags.stdinName, submitFlags.stdinType)
	}
	info, err := os.Stat(path)
	if err != nil {
		return upload.Document{}, err
	}
	if info.IsDir() {
		return upload.Document{}, fmt.Errorf("%s is a directory", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return upload.Document{}, fmt.Errorf("detect media type: %w", err)
	}
	open := func() (io.ReadCloser, error) { return os.Open(path) }
	return upload.NewDocument(filepath.Base(path), mt.String(), info.Size(), open, nil), nil
}

// optionsJSON sends only the flags the user set so the gateway applies its
// own defaults to the rest.
func optionsJSON(cmd *cobra.Command) (string, error) {
	opts := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("page-range") {
		opts["pageRange"] = submitFlags.pageRange
	}
	if flags.Changed("max-output-tokens") {
		opts["maxOutputTokens"] = submitFlags.maxOutputTokens
	}
	if flags.Changed("include-images") {
		opts["includeImages"] = submitFlags.includeImages
	}
	if flags.Changed("include-headers-footers") {
		opts["includeHeadersFooters"] = submitFlags.includeHeadersFooters
	}
	if flags.Changed("format") {
		opts["outputFormat"] = submitFlags.format
	}
	if len(opts) == 0 {
		return "", nil
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func init() {
	f := submitCmd.Flags()
	f.StringVar(&submitFlags.pageRange, "page-range", "", "Pages to process, e.g. 1-5,7,9-12")
	f.IntVar(&submitFlags.maxOutputTokens, "max-output-tokens", 8192, "Output token budget (1-32768)")
	f.BoolVar(&submitFlags.includeImages, "include-images", true, "Include extracted images")
	f.BoolVar(&submitFlags.includeHeadersFooters, "include-headers-footers", false, "Keep page headers and footers")
	f.StringVar(&submitFlags.format, "format", "markdown", "Output format: markdown, html or json")
	f.StringVar(&submitFlags.stdinName, "name", "stdin", "Filename reported for a document read from stdin")
	f.StringVar(&submitFlags.stdinType, "type", "", "Media type of a document read from stdin (detected when empty)")
	f.IntVar(&submitFlags.parallel, "parallel", 4, "Concurrent uploads")
	f.BoolVar(&submitFlags.wait, "wait", false, "Poll each job until it finishes")
	submitFlags.poll.register(submitCmd)
	rootCmd.AddCommand(submitCmd)
}
