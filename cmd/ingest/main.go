// Command ingest imports bank statements (CSV, XLSX/XLS, PDF) and prints the
// normalized, categorized transactions as JSON lines.
//
//	ingest [flags] FILE...
//	ingest -watch -persist
//	ingest -list-archive
//	ingest -retry-archived ID
//	ingest -persist -rules rules.csv -save-rules
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	importservice "github.com/FACorreiaa/statement-ingest/internal/domain/import/service"
	"github.com/FACorreiaa/statement-ingest/pkg/config"
	"github.com/FACorreiaa/statement-ingest/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}

	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := runOptions{}
	fs.StringVar(&opts.userID, "user", cfg.Pipeline.UserID, "user the transactions belong to")
	fs.StringVar(&opts.rulesPath, "rules", cfg.Rules.Path, "categorization rules CSV")
	fs.IntVar(&opts.workers, "workers", cfg.Pipeline.Workers, "row workers per file (0 = one per CPU)")
	fs.BoolVar(&opts.persist, "persist", cfg.Database.Enabled, "store transactions in Postgres")
	fs.BoolVar(&opts.watch, "watch", false, "sweep the inbox directory on a schedule")
	fs.BoolVar(&opts.listArchive, "list-archive", false, "print the user's archived files")
	fs.StringVar(&opts.retryID, "retry-archived", "", "import an archived file again by id")
	fs.BoolVar(&opts.saveRules, "save-rules", false, "store the -rules file for the user (requires -persist)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 && !opts.watch && !opts.usesArchive() && !opts.saveRules {
		fmt.Fprintln(stderr, "usage: ingest [flags] FILE...")
		fs.PrintDefaults()
		return 2
	}
	if opts.saveRules && (!opts.persist || opts.rulesPath == "") {
		fmt.Fprintln(stderr, "-save-rules needs -persist and -rules")
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}

	logCfg := logging.FromStrings(cfg.Log.Level, cfg.Log.Format)
	logCfg.Output = stderr
	logger := logging.Setup(logCfg)

	deps, err := InitDependencies(ctx, cfg, opts, logger)
	if err != nil {
		logger.Error("startup failed", slog.Any("error", err))
		return 1
	}
	defer deps.Close()

	if opts.saveRules {
		if err := deps.CategorizationService.SaveRules(ctx, deps.Rules); err != nil {
			logger.Error("saving rules", slog.Any("error", err))
			return 1
		}
		logger.Info("rules saved",
			slog.String("user_id", opts.userID),
			slog.Int("rules", len(deps.Rules)))
	}

	switch {
	case opts.listArchive:
		if err := listArchive(ctx, deps, opts.userID, stdout); err != nil {
			logger.Error("archive listing failed", slog.Any("error", err))
			return 1
		}
		return 0
	case opts.retryID != "":
		ok, err := retryArchived(ctx, deps, opts.userID, opts.retryID, stdout)
		if err != nil {
			logger.Error("retry failed", slog.Any("error", err))
			return 1
		}
		if !ok {
			return 1
		}
		return 0
	}

	if opts.watch {
		if err := runWatch(ctx, deps, opts.userID); err != nil {
			logger.Error("watch stopped", slog.Any("error", err))
			return 1
		}
		return 0
	}

	enc := json.NewEncoder(stdout)
	code := 0
	for _, path := range fs.Args() {
		result, err := importFile(ctx, deps, opts.userID, path)
		if err != nil {
			code = 1
			if encErr := enc.Encode(newFailure(path, err)); encErr != nil {
				return 1
			}
			continue
		}
		if err := enc.Encode(result); err != nil {
			logger.Error("writing result", slog.Any("error", err))
			return 1
		}
	}
	return code
}

// importFile reads one statement and runs it through the import service.
func importFile(ctx context.Context, deps *Dependencies, userID, path string) (*importservice.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return deps.ImportService.Import(ctx, importservice.Input{
		UserID:      userID,
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
		Rules:       deps.Rules,
	})
}

// failure is printed in place of a result when a file cannot be imported.
type failure struct {
	File         string   `json:"file"`
	Error        string   `json:"error"`
	Transactions []string `json:"transactions"`
}

func newFailure(path string, err error) failure {
	msg := err.Error()
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		msg = fmt.Sprintf("reading file: %v", pathErr.Err)
	}
	return failure{File: filepath.Base(path), Error: msg, Transactions: []string{}}
}
