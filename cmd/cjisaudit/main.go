package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clearline-sec/cjisaudit/internal/audit"
	"github.com/clearline-sec/cjisaudit/internal/auth"
	"github.com/clearline-sec/cjisaudit/internal/catalog"
	"github.com/clearline-sec/cjisaudit/internal/config"
	"github.com/clearline-sec/cjisaudit/internal/document"
	"github.com/clearline-sec/cjisaudit/internal/evaluate"
	"github.com/clearline-sec/cjisaudit/internal/extract"
	"github.com/clearline-sec/cjisaudit/internal/report"
	"github.com/clearline-sec/cjisaudit/internal/server"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

type analyzeFlags struct {
	catalogPath string
	section     string
	format      string
	out         string
	failUnder   float64
}

func main() {
	root := &cobra.Command{
		Use:     "cjisaudit",
		Short:   "Check security policy documents against the CJIS requirement catalog",
		Version: version,
	}

	var (
		serveConfig string
		serveAddr   string
	)
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(serveConfig, serveAddr)
		},
	}
	serveCmd.Flags().StringVar(&serveConfig, "config", "cjisaudit.yaml", "Path to config file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")

	var flags analyzeFlags
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file|->",
		Short: "Analyze one policy document and print the compliance report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(args[0], flags)
		},
	}
	f := analyzeCmd.Flags()
	f.StringVar(&flags.catalogPath, "catalog", "", "Rule catalog YAML (default: embedded CJIS catalog)")
	f.StringVar(&flags.section, "section", "", "Restrict the analysis to one catalog section key")
	f.StringVar(&flags.format, "format", "json", "Output format: json or md")
	f.StringVar(&flags.out, "out", "", "Write output to file instead of stdout")
	f.Float64Var(&flags.failUnder, "fail-under", 0, "Exit 2 if overall coverage falls below this ratio (0..1)")

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and validate rule catalogs",
	}

	catalogValidateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Parse a catalog file and report the first problem found",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogValidate(args[0])
		},
	}

	var showCatalogPath string
	catalogShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the sections and requirements of a catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogShow(showCatalogPath)
		},
	}
	catalogShowCmd.Flags().StringVar(&showCatalogPath, "catalog", "", "Rule catalog YAML (default: embedded CJIS catalog)")

	catalogCmd.AddCommand(catalogValidateCmd, catalogShowCmd)
	root.AddCommand(serveCmd, analyzeCmd, catalogCmd)

	if err := root.Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		// cobra already printed the error
		os.Exit(1)
	}
}

func runServe(configPath, addrOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return err
	}

	authz, err := auth.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid api keys: %w", err)
	}

	sinks, err := buildSinks(cfg.Audit.Sinks)
	if err != nil {
		return fmt.Errorf("build audit sinks: %w", err)
	}
	emitter := audit.NewEmitter(audit.EmitterConfig{
		QueueSize: cfg.Audit.QueueSize,
		Workers:   cfg.Audit.Workers,
	}, sinks)
	defer emitter.Close(context.Background())

	srv := server.New(cfg, cat, authz, emitter)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runAnalyze(path string, flags analyzeFlags) error {
	if flags.format != "json" && flags.format != "md" {
		return codeError(3, "invalid --format %q: must be json or md", flags.format)
	}
	if flags.failUnder < 0 || flags.failUnder > 1 {
		return codeError(3, "invalid --fail-under %v: must be within 0..1", flags.failUnder)
	}

	cat, err := loadCatalog(flags.catalogPath)
	if err != nil {
		return err
	}

	text, err := readDocumentText(path)
	if err != nil {
		return err
	}

	doc, err := document.New(text)
	if err != nil {
		return codeError(1, "%s: %v", displayName(path), err)
	}

	eval := evaluate.New()
	var rep *report.Report
	if flags.section != "" {
		rep, err = eval.EvaluateSection(doc, cat, flags.section)
	} else {
		rep, err = eval.Evaluate(doc, cat)
	}
	if err != nil {
		return codeError(3, "%v", err)
	}
	rep.ID = uuid.NewString()

	var out []byte
	switch flags.format {
	case "md":
		out = []byte(report.RenderMarkdown(rep))
	default:
		out, err = report.RenderJSON(rep)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		out = append(out, '\n')
	}

	if flags.out != "" {
		if err := os.WriteFile(flags.out, out, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	} else {
		if _, err := os.Stdout.Write(out); err != nil {
			return err
		}
	}

	if flags.failUnder > 0 && rep.OverallRatio < flags.failUnder {
		return codeError(2, "overall coverage %.2f below threshold %.2f", rep.OverallRatio, flags.failUnder)
	}
	return nil
}

func runCatalogValidate(path string) error {
	cat, err := catalog.Load(path)
	if err != nil {
		return codeError(1, "%v", err)
	}
	fmt.Printf("catalog %s: %d sections, %d requirements\n",
		cat.Version, len(cat.Sections), cat.RequirementCount())
	return nil
}

func runCatalogShow(path string) error {
	cat, err := loadCatalog(path)
	if err != nil {
		return err
	}

	fmt.Printf("catalog version %s\n", cat.Version)
	for _, sec := range cat.Sections {
		fmt.Printf("\n%s %s (%s)\n", sec.ID, sec.Title, sec.Key)
		for _, req := range sec.Requirements {
			marker := " "
			if req.Required {
				marker = "*"
			}
			fmt.Printf("  %s %s %s\n", marker, req.ID, req.Title)
		}
	}
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, codeError(1, "load catalog: %v", err)
	}
	return cat, nil
}

// readDocumentText reads the input document, extracting text for known
// binary formats. "-" reads plain text from stdin.
func readDocumentText(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", codeError(1, "%v", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx":
		text, err := extract.FromUpload(filepath.Base(path), data)
		if err != nil {
			return "", codeError(1, "%s: %v", displayName(path), err)
		}
		return text, nil
	default:
		return string(data), nil
	}
}

func displayName(path string) string {
	if path == "-" {
		return "stdin"
	}
	return filepath.Base(path)
}

func buildSinks(configs []config.AuditSinkConfig) ([]audit.Sink, error) {
	sinks := make([]audit.Sink, 0, len(configs))
	for _, sc := range configs {
		switch strings.ToLower(strings.TrimSpace(sc.Type)) {
		case "stdout":
			sinks = append(sinks, audit.NewStdout())
		case "file_jsonl":
			s, err := audit.NewFileSink(sc.Path)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, s)
		case "webhook":
			timeout := time.Duration(sc.TimeoutSeconds) * time.Second
			s, err := audit.NewWebhookSink(sc.URL, sc.Headers, timeout)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, s)
		default:
			return nil, fmt.Errorf("unknown audit sink type %q", sc.Type)
		}
	}
	return sinks, nil
}
