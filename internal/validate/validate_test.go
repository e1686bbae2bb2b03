package validate

import (
	"testing"

	"github.com/tendant/simple-ocr-gateway/internal/apperr"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

func TestPageRangeGrammar(t *testing.T) {
	valid := []string{"1", "12", "1-5", "1-5,7,9-12", "3,1", "10-2", "007"}
	for _, s := range valid {
		if !PageRange(s) {
			t.Fatalf("expected %q to be accepted", s)
		}
	}
	invalid := []string{"", " ", "1-", "-1", "1,", ",1", "1--2", "1-2-3", "a", "1 ,2", "1;2", "١"}
	for _, s := range invalid {
		if PageRange(s) {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts, err := DefaultLimits().Options("")
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	want := schema.Options{
		MaxOutputTokens: 8192,
		IncludeImages:   true,
		OutputFormat:    schema.FormatMarkdown,
	}
	if opts != want {
		t.Fatalf("defaults = %+v, want %+v", opts, want)
	}
}

func TestOptionsEchoesValidValues(t *testing.T) {
	raw := `{"pageRange":"1-5,7,9-12","maxOutputTokens":32768,"includeImages":false,"includeHeadersFooters":true,"outputFormat":"html","extra":1,"ignored":null}`
	opts, err := DefaultLimits().Options(raw)
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.PageRange != "1-5,7,9-12" {
		t.Fatalf("pageRange = %q", opts.PageRange)
	}
	if opts.MaxOutputTokens != 32768 || opts.IncludeImages || !opts.IncludeHeadersFooters || opts.OutputFormat != schema.FormatHTML {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestOptionsIntegralTokenSpellings(t *testing.T) {
	for _, raw := range []string{`{"maxOutputTokens":1000.0}`, `{"maxOutputTokens":1e3}`, `{"maxOutputTokens":1.0E+3}`} {
		opts, err := DefaultLimits().Options(raw)
		if err != nil {
			t.Fatalf("Options(%s): %v", raw, err)
		}
		if opts.MaxOutputTokens != 1000 {
			t.Fatalf("Options(%s) maxOutputTokens = %d", raw, opts.MaxOutputTokens)
		}
	}
}

func TestOptionsRejections(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		field string
	}{
		{"empty page range", `{"pageRange":""}`, "pageRange"},
		{"bad page range", `{"pageRange":"1-"}`, "pageRange"},
		{"tokens zero", `{"maxOutputTokens":0}`, "maxOutputTokens"},
		{"tokens over ceiling", `{"maxOutputTokens":32769}`, "maxOutputTokens"},
		{"tokens fractional", `{"maxOutputTokens":10.5}`, "maxOutputTokens"},
		{"tokens string", `{"maxOutputTokens":"100"}`, "maxOutputTokens"},
		{"images not bool", `{"includeImages":"yes"}`, "includeImages"},
		{"unknown format", `{"outputFormat":"pdf"}`, "outputFormat"},
		{"not an object", `[1,2]`, "options"},
		{"not json", `pageRange=1`, "options"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DefaultLimits().Options(tc.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			e := apperr.As(err)
			if e.Code != apperr.CodeInvalidOptions {
				t.Fatalf("code = %s", e.Code)
			}
			if len(e.Details) == 0 || e.Details[0].Field != tc.field {
				t.Fatalf("details = %+v, want field %s", e.Details, tc.field)
			}
		})
	}
}

func TestOptionsReportsEveryField(t *testing.T) {
	_, err := DefaultLimits().Options(`{"pageRange":"x","outputFormat":"doc"}`)
	e := apperr.As(err)
	if len(e.Details) != 2 {
		t.Fatalf("expected two violations, got %+v", e.Details)
	}
	if e.Details[0].Field != "outputFormat" || e.Details[1].Field != "pageRange" {
		t.Fatalf("unexpected fields: %+v", e.Details)
	}
}

func TestFile(t *testing.T) {
	l := DefaultLimits()
	cases := []struct {
		name       string
		meta       FileMeta
		violations int
	}{
		{"pdf", FileMeta{MediaType: "application/pdf", Size: 1}, 0},
		{"png with params", FileMeta{MediaType: "Image/PNG; charset=binary", Size: 10}, 0},
		{"jpg alias", FileMeta{MediaType: "image/jpg", Size: 10}, 0},
		{"at limit", FileMeta{MediaType: "image/webp", Size: DefaultMaxFileSize}, 0},
		{"over limit", FileMeta{MediaType: "application/pdf", Size: DefaultMaxFileSize + 1}, 1},
		{"empty", FileMeta{MediaType: "application/pdf", Size: 0}, 1},
		{"docx", FileMeta{MediaType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Size: 10}, 1},
		{"no type and empty", FileMeta{Size: 0}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := l.File(tc.meta)
			if tc.violations == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			e := apperr.As(err)
			if e.Code != apperr.CodeInvalidFile {
				t.Fatalf("code = %s", e.Code)
			}
			if len(e.Details) != tc.violations {
				t.Fatalf("details = %+v", e.Details)
			}
		})
	}
}
