// surveyimport loads uploaded region survey records, one JSON object
// per line, into the survey table.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log"
	"os"

	"terraintiles/internal/config"
	"terraintiles/internal/store"
	"terraintiles/internal/survey"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/tiler.yaml", "config path")
		envPath    = flag.String("env", ".env", "credentials env file (optional)")
		inPath     = flag.String("in", "-", "survey JSONL file, - for stdin")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[surveyimport] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	s, err := store.Open(cfg.DSN)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		logger.Fatalf("store: %v", err)
	}

	var in io.Reader = os.Stdin
	if *inPath != "-" {
		f, err := os.Open(*inPath)
		if err != nil {
			logger.Fatalf("open: %v", err)
		}
		defer f.Close()
		in = f
	}

	sc := bufio.NewScanner(in)
	// Elev rows for a varregion run long; the default token size is
	// too small.
	sc.Buffer(make([]byte, 0, 1<<20), 1<<24)

	var imported, rejected int
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		rec, err := survey.Parse(raw)
		if err != nil {
			rejected++
			logger.Printf("line %d rejected: %v", line, err)
			continue
		}
		region, field, err := rec.Region()
		if err != nil {
			rejected++
			logger.Printf("line %d rejected: %v", line, err)
			continue
		}
		if err := s.UpsertSurveyRegion(ctx, store.SurveyRow{Region: region, Field: field}); err != nil {
			logger.Fatalf("line %d: %v", line, err)
		}
		imported++
	}
	if err := sc.Err(); err != nil {
		logger.Fatalf("read: %v", err)
	}
	logger.Printf("imported %d records, rejected %d", imported, rejected)
	if rejected > 0 {
		os.Exit(1)
	}
}
