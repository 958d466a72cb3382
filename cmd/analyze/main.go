// Command analyze runs the analysis pipeline on a local file without a
// database and prints the resulting document and analysis as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"contractdesk-backend/cache"
	"contractdesk-backend/config"
	"contractdesk-backend/extract"
	"contractdesk-backend/llm"
	"contractdesk-backend/logger"
	"contractdesk-backend/models"
	"contractdesk-backend/repository/memory"
	"contractdesk-backend/service"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
)

type output struct {
	Document   *models.Document          `json:"document"`
	Analysis   *service.AnalysisView     `json:"analysis"`
	Highlights *service.HighlightsResult `json:"highlights,omitempty"`
	Variables  *service.VariablesResult  `json:"variables,omitempty"`
}

func main() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	kind := fs.String("kind", "contract", "Document kind: contract or template")
	title := fs.String("title", "", "Document title (defaults to the file name)")
	model := fs.String("model", "", "Gemini model (defaults to GEMINI_MODEL)")
	outPath := fs.StringP("out", "o", "", "Write JSON to this file instead of stdout")
	timeout := fs.Duration("timeout", 5*time.Minute, "Timeout for the whole run")
	useCache := fs.Bool("cache", false, "Reuse stage results from the configured cache backend")
	verbose := fs.BoolP("verbose", "v", false, "Log pipeline progress to stderr")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: analyze [options] <file>

Description:
  Extract text from a PDF, DOCX or plain text file and run the summary,
  risk, field and normalization stages against it.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  analyze lease.pdf
  analyze --kind template -o nda.json nda.docx
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	if err := run(fs.Arg(0), options{
		kind:     models.DocumentKind(*kind),
		title:    *title,
		model:    *model,
		outPath:  *outPath,
		timeout:  *timeout,
		useCache: *useCache,
		verbose:  *verbose,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	kind     models.DocumentKind
	title    string
	model    string
	outPath  string
	timeout  time.Duration
	useCache bool
	verbose  bool
}

func run(path string, opts options) error {
	if !opts.kind.Valid() {
		return fmt.Errorf("unknown kind %q", opts.kind)
	}

	cfg := config.Load()
	if opts.model != "" {
		cfg.Gemini.Model = opts.model
	}
	if cfg.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set")
	}

	var log logger.ILogger = logger.NewNopLogger()
	if opts.verbose {
		log = logger.NewStderrLogger()
	}
	defer log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	content, err := extract.Text(filepath.Base(path), mimetype.Detect(data).String(), data)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	client, err := llm.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model,
		llm.GeminiWithTemperature(float32(cfg.Gemini.Temperature)),
		llm.GeminiWithLogger(log),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	docs := memory.NewDocumentStore()
	analysisOpts := []service.AnalysisServiceOption{
		service.AnalysisWithDocumentStore(docs),
		service.AnalysisWithLLM(client),
		service.AnalysisWithLogger(log),
		service.AnalysisWithRetry(cfg.Analysis.MaxRetries, cfg.Analysis.InitialBackoff),
	}
	if opts.useCache {
		stageCache, err := cache.New(cache.Config{
			Backend:  cfg.Cache.Backend,
			RedisURL: cfg.Cache.RedisURL,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			return err
		}
		analysisOpts = append(analysisOpts, service.AnalysisWithCache(stageCache, cfg.Cache.TTL))
	}
	analysis := service.NewAnalysisService(analysisOpts...)

	title := strings.TrimSpace(opts.title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	doc := &models.Document{
		OwnerID: uuid.New(),
		Kind:    opts.kind,
		Title:   title,
		Content: content,
	}
	if err := docs.Create(ctx, doc); err != nil {
		return err
	}

	if _, err := analysis.StartAnalysis(ctx, service.StartAnalysisRequest{DocumentID: doc.ID}); err != nil {
		return err
	}
	runErr := analysis.RunAnalysis(ctx, service.RunAnalysisRequest{DocumentID: doc.ID})

	// a failed run still reports whatever stages completed
	out := output{}
	if out.Document, err = docs.GetByID(ctx, doc.ID); err != nil {
		return err
	}
	if out.Analysis, err = analysis.GetAnalysis(ctx, doc.ID); err != nil {
		return err
	}
	if h, err := analysis.Highlights(ctx, doc.ID); err == nil {
		out.Highlights = h
	}
	if v, err := analysis.Variables(ctx, doc.ID); err == nil {
		out.Variables = v
	}

	var w io.Writer = os.Stdout
	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	return runErr
}
