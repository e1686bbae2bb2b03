package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tendant/simple-ocr-gateway/internal/apperr"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

const pageRangePattern = `^(\d+(-\d+)?)(,\d+(-\d+)?)*$`

var pageRangeRe = regexp.MustCompile(pageRangePattern)

// PageRange reports whether s is a comma separated list of page numbers or
// N-M ranges. The empty string is not a page range.
func PageRange(s string) bool {
	return pageRangeRe.MatchString(s)
}

const optionsSchema = `{
  "type": "object",
  "properties": {
    "pageRange": {"type": "string", "pattern": "^(\\d+(-\\d+)?)(,\\d+(-\\d+)?)*$"},
    "maxOutputTokens": {"type": "integer", "minimum": 1, "maximum": 32768},
    "includeImages": {"type": "boolean"},
    "includeHeadersFooters": {"type": "boolean"},
    "outputFormat": {"enum": ["markdown", "html", "json"]}
  }
}`

var compiledOptions = mustCompile("options.json", optionsSchema)

func mustCompile(url, doc string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(doc)); err != nil {
		panic("add options schema: " + err.Error())
	}
	s, err := compiler.Compile(url)
	if err != nil {
		panic("compile options schema: " + err.Error())
	}
	return s
}

var fieldMessages = map[string]string{
	"pageRange":             "must list pages or ranges, e.g. 1-5,7,9-12",
	"maxOutputTokens":       "must be an integer between 1 and 32768",
	"includeImages":         "must be a boolean",
	"includeHeadersFooters": "must be a boolean",
	"outputFormat":          "must be one of markdown, html, json",
}

type rawOptions struct {
	PageRange             *string              `json:"pageRange"`
	MaxOutputTokens       *json.Number         `json:"maxOutputTokens"`
	IncludeImages         *bool                `json:"includeImages"`
	IncludeHeadersFooters *bool                `json:"includeHeadersFooters"`
	OutputFormat          *schema.OutputFormat `json:"outputFormat"`
}

// Options parses the serialized options object sent alongside an upload and
// returns it with defaults applied. An empty string means "all defaults".
// Unknown keys and null values are ignored.
func (l Limits) Options(raw string) (schema.Options, error) {
	opts := schema.Options{
		MaxOutputTokens:       l.Defaults.MaxOutputTokens,
		IncludeImages:         l.Defaults.IncludeImages,
		IncludeHeadersFooters: l.Defaults.IncludeHeadersFooters,
		OutputFormat:          l.Defaults.OutputFormat,
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return opts, nil
	}

	var doc any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil || dec.More() {
		return schema.Options{}, invalidOptions(schema.Violation{Field: "options", Message: "must be a JSON object"})
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return schema.Options{}, invalidOptions(schema.Violation{Field: "options", Message: "must be a JSON object"})
	}
	for k, v := range obj {
		if v == nil {
			delete(obj, k)
		}
	}

	if err := compiledOptions.Validate(obj); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return schema.Options{}, invalidOptions(violations(ve)...)
		}
		return schema.Options{}, apperr.New(apperr.CodeInvalidOptions, "invalid options", err)
	}

	cleaned, err := json.Marshal(obj)
	if err != nil {
		return schema.Options{}, apperr.New(apperr.CodeInvalidOptions, "invalid options", err)
	}
	var ro rawOptions
	if err := json.NewDecoder(bytes.NewReader(cleaned)).Decode(&ro); err != nil {
		field := "options"
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			field = te.Field
		}
		msg, ok := fieldMessages[field]
		if !ok {
			msg = "must be a JSON object"
		}
		return schema.Options{}, invalidOptions(schema.Violation{Field: field, Message: msg})
	}

	if ro.PageRange != nil {
		opts.PageRange = *ro.PageRange
	}
	if ro.MaxOutputTokens != nil {
		n, ok := wholeNumber(*ro.MaxOutputTokens)
		if !ok {
			return schema.Options{}, invalidOptions(schema.Violation{Field: "maxOutputTokens", Message: fieldMessages["maxOutputTokens"]})
		}
		opts.MaxOutputTokens = n
	}
	if ro.IncludeImages != nil {
		opts.IncludeImages = *ro.IncludeImages
	}
	if ro.IncludeHeadersFooters != nil {
		opts.IncludeHeadersFooters = *ro.IncludeHeadersFooters
	}
	if ro.OutputFormat != nil {
		opts.OutputFormat = *ro.OutputFormat
	}
	return opts, nil
}

// wholeNumber accepts any JSON number with an integral value, so 1000.0 and
// 1e3 read as 1000.
func wholeNumber(n json.Number) (int, bool) {
	if i, err := n.Int64(); err == nil {
		return int(i), i >= math.MinInt32 && i <= math.MaxInt32
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func invalidOptions(v ...schema.Violation) error {
	return apperr.Invalid(apperr.CodeInvalidOptions, "invalid options", v)
}

// violations flattens a schema error tree to one entry per offending field.
func violations(root *jsonschema.ValidationError) []schema.Violation {
	seen := map[string]string{}
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.TrimPrefix(e.InstanceLocation, "/")
			if i := strings.IndexByte(field, '/'); i >= 0 {
				field = field[:i]
			}
			if field == "" {
				field = "options"
			}
			if _, ok := seen[field]; !ok {
				msg, ok := fieldMessages[field]
				if !ok {
					msg = e.Message
				}
				seen[field] = msg
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(root)

	out := make([]schema.Violation, 0, len(seen))
	for f, m := range seen {
		out = append(out, schema.Violation{Field: f, Message: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
