// Command ingestxlsx parses one score workbook from the command line and
// writes the normalized result as JSON or a CSV report. It runs the same
// ingestion engine as the server, so it doubles as a quick way to check
// what a workbook will produce before uploading it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"classpulse/internal/config"
	"classpulse/internal/exporter"
	"classpulse/internal/infrastructure"
	"classpulse/internal/ingest"
	"classpulse/pkg/contracts/domain"
)

func main() {
	in := flag.String("in", "", "path to the xlsx workbook (required)")
	out := flag.String("out", "", "output file path (defaults to stdout)")
	format := flag.String("format", "json", "output format: json | csv")
	teacher := flag.String("teacher", "cli", "teacher name for the upload metadata")
	class := flag.String("class", "cli", "class name for the upload metadata")
	subject := flag.String("subject", "all", "subject label for the upload metadata")
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: ingestxlsx -in scores.xlsx [-out report.csv] [-format json|csv]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}
	cfg.Logging.Output = "stdout"

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		logger = slog.Default()
	}

	file, err := os.Open(*in)
	if err != nil {
		logger.Error("Cannot open workbook", slog.String("path", *in), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer file.Close()

	engine := ingest.NewEngine(logger, ingest.Config{
		Vocabulary: ingest.Vocabulary{
			NameHeaders:    cfg.Ingest.NameHeaders,
			MetaHeaders:    cfg.Ingest.MetaHeaders,
			CurrentSheets:  cfg.Ingest.CurrentSheets,
			PreviousSheets: cfg.Ingest.PreviousSheets,
		},
		MinScore: cfg.Ingest.MinScore,
		MaxScore: cfg.Ingest.MaxScore,
	})

	payload, err := engine.Ingest(context.Background(), file, domain.ExamOptions{
		Teacher:   *teacher,
		ClassName: *class,
		Subject:   *subject,
		FileName:  *in,
	})
	if err != nil {
		logger.Error("Ingestion failed", slog.String("path", *in), slog.String("error", err.Error()))
		os.Exit(1)
	}

	for _, warning := range payload.Meta.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", warning)
	}

	dst := os.Stdout
	if *out != "" {
		dst, err = os.Create(*out)
		if err != nil {
			logger.Error("Cannot create output file", slog.String("path", *out), slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer dst.Close()
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(dst)
		enc.SetIndent("", "  ")
		err = enc.Encode(payload)
	case "csv":
		err = exporter.NewReportWriter().WriteCSV(dst, payload)
	default:
		fmt.Fprintf(os.Stderr, "unknown format %q, want json or csv\n", *format)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Failed to write output", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Workbook ingested",
		slog.Int("students", payload.Meta.StudentCount),
		slog.Int("subjects", len(payload.Meta.Subjects)),
		slog.Int("warnings", len(payload.Meta.Warnings)))
}
