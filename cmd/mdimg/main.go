package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"mdimg/pkg/config"
	"mdimg/pkg/fetch"
	"mdimg/pkg/process"
)

const version = "1.0.0"

// tokenEnvVar is the environment variable consulted when no --token flag or
// config file value is given (Azure DevOps PAT convention).
const tokenEnvVar = "AZDO_PAT"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code. Output goes to the
// provided writers so tests can capture it.
func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("mdimg", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configFile := flags.String("config", "", "Path to optional YAML config file")
	outDir := flags.String("out-dir", "", "Directory for downloaded images (default \"images\", resolved per document)")
	overwrite := flags.Bool("overwrite", false, "Rewrite documents in place instead of writing .converted siblings")
	token := flags.String("token", "", "Access token for HTTP Basic auth (default $"+tokenEnvVar+")")
	timeoutSec := flags.Int("timeout", 0, "Per-attempt HTTP timeout in seconds (default 20)")
	retries := flags.Int("retries", -1, "Retries after the first failed attempt (default 2)")
	logLevel := flags.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	showVersion := flags.Bool("version", false, "Print version and exit")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: mdimg [options] <file-or-directory>\n\nDownloads remote images referenced by Markdown documents and rewrites\nthe references to local relative paths.\n\nOptions:\n")
		fmt.Fprint(stderr, flags.FlagUsages())
	}

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 1
	}
	if *showVersion {
		fmt.Fprintf(stdout, "mdimg %s\n", version)
		return 0
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: exactly one target file or directory is required")
		flags.Usage()
		return 1
	}
	target := flags.Arg(0)

	log := setupLogger(*logLevel, stderr)

	// All ambient state is resolved here; the core packages only see Config
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded .env file")
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Errorf("Config error: %v", err)
			return 1
		}
		cfg = loaded
	}

	// Flags override config file values
	if *outDir != "" {
		cfg.OutDir = *outDir
	}
	if *overwrite {
		cfg.Overwrite = true
	}
	if *token != "" {
		cfg.AccessToken = *token
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv(tokenEnvVar)
	}
	if *timeoutSec > 0 {
		cfg.HTTPClientSettings.Timeout = time.Duration(*timeoutSec) * time.Second
	}
	if *retries >= 0 {
		cfg.MaxRetries = *retries
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}

	docs, err := findDocuments(target)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %s: %v\n", target, err)
		return 1
	}
	if len(docs) == 0 {
		fmt.Fprintf(stderr, "[INFO] no Markdown documents found under %s\n", target)
		return 1
	}
	log.Debugf("Found %d Markdown document(s)", len(docs))

	httpClient := fetch.NewClient(cfg.HTTPClientSettings, log)
	fetcher := fetch.NewFetcher(httpClient, cfg, log.WithField("component", "fetch"))
	rewriter := process.NewRewriter(fetcher, log.WithField("component", "rewrite"))
	processor := process.NewProcessor(rewriter, log.WithField("component", "process"))

	// Documents are processed sequentially; a failure is reported and the
	// batch continues
	ctx := context.Background()
	failed := 0
	for _, doc := range docs {
		outPath, procErr := processor.Process(ctx, doc, cfg.OutDir, cfg.Overwrite)
		if procErr != nil {
			fmt.Fprintf(stderr, "[ERROR] %s: %v\n", doc, procErr)
			failed++
			continue
		}
		fmt.Fprintf(stdout, "[OK] %s -> %s\n", doc, outPath)
	}
	log.Debugf("Processed %d document(s), %d failed", len(docs), failed)
	return 0
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}
	return log
}

// findDocuments expands target into the list of Markdown documents to
// process: a Markdown file yields itself, a directory is walked recursively,
// anything else yields nothing.
func findDocuments(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if isMarkdown(target) {
			return []string{target}, nil
		}
		return nil, nil
	}

	var docs []string
	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && isMarkdown(path) {
			docs = append(docs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// isMarkdown matches the .md and .markdown extensions, case-insensitive.
func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
