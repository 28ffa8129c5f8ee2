// Package service orchestrates statement imports: detect, parse, map,
// normalize, dedupe and categorize.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-ingest/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/dedupe"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/detector"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/mapping"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-ingest/pkg/metrics"
	"github.com/FACorreiaa/statement-ingest/pkg/money"
)

const tracerName = "github.com/FACorreiaa/statement-ingest/internal/domain/import/service"

// amountSampleRows is how many parsed rows feed the amount format probe.
// Dates are probed on every row: one unambiguous date late in a file decides
// the order for all of them.
const amountSampleRows = 20

var (
	// ErrNoSink is returned by Import when no sink was configured.
	ErrNoSink = errors.New("no sink configured")
	// ErrStore wraps failures of the hash index or sink, as opposed to
	// problems with the file itself.
	ErrStore = errors.New("transaction store failed")
)

// RuleSource supplies a user's compiled rules. *categorization.Service
// satisfies it.
type RuleSource interface {
	RuleSet(ctx context.Context, userID string) (*categorization.RuleSet, error)
}

// Sink persists accepted transactions and reports how many were new.
type Sink interface {
	Save(ctx context.Context, result *Result) (int, error)
}

// Options configure an ImportService.
type Options struct {
	// Workers > 1 normalizes and categorizes rows concurrently.
	Workers int
	// Currency used for batch totals. Defaults to INR.
	Currency string
	// Normalizer holds locale defaults; the CSV dialect probe may enable
	// DecimalComma and MonthFirst on top of them.
	Normalizer normalizer.Options
}

// Input is one file to import.
type Input struct {
	UserID      string
	Filename    string
	ContentType string
	Data        []byte
	// Rules, when non-nil, are used in the given order instead of the
	// configured RuleSource.
	Rules []categorization.Rule
}

// Stats summarizes row outcomes.
type Stats struct {
	TotalRows  int `json:"total_rows"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
}

// Result is the outcome of one file.
type Result struct {
	BatchID      uuid.UUID                 `json:"batch_id"`
	UserID       string                    `json:"user_id"`
	Filename     string                    `json:"filename"`
	Kind         detector.Kind             `json:"kind"`
	Transactions []*normalizer.Transaction `json:"transactions"`
	Errors       []string                  `json:"errors"`
	Stats        Stats                     `json:"stats"`
	Totals       *money.Totals             `json:"totals"`
	Mapping      mapping.ColumnMapping     `json:"mapping"`
	Dialect      *sniffer.Dialect          `json:"dialect,omitempty"`
	Meta         parser.Meta               `json:"meta"`
	Inserted     int                       `json:"inserted"`
}

// ImportService runs the pipeline. It holds no per-file state and is safe
// for concurrent use.
type ImportService struct {
	opts        Options
	categorizer *categorization.Categorizer
	rules       RuleSource
	index       dedupe.Index
	sink        Sink
	pdfText     parser.TextExtractor
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewImportService creates a new import service
func NewImportService(opts Options, logger *slog.Logger) *ImportService {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Currency == "" {
		opts.Currency = money.INR
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportService{
		opts:        opts,
		categorizer: categorization.NewCategorizer(),
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
	}
}

// WithCategorizer replaces the default keyword table.
func (s *ImportService) WithCategorizer(c *categorization.Categorizer) *ImportService {
	s.categorizer = c
	return s
}

// WithRuleSource loads rules per user when Input.Rules is nil.
func (s *ImportService) WithRuleSource(src RuleSource) *ImportService {
	s.rules = src
	return s
}

// WithHashIndex enables cross-batch dedupe against stored hashes.
func (s *ImportService) WithHashIndex(idx dedupe.Index) *ImportService {
	s.index = idx
	return s
}

// WithSink sets the persistence target used by Import.
func (s *ImportService) WithSink(sink Sink) *ImportService {
	s.sink = sink
	return s
}

// WithPDFExtractor replaces the text extractor used for PDF statements.
func (s *ImportService) WithPDFExtractor(e parser.TextExtractor) *ImportService {
	s.pdfText = e
	return s
}

// WithMetrics records pipeline counters.
func (s *ImportService) WithMetrics(m *metrics.Metrics) *ImportService {
	s.metrics = m
	return s
}

// Import processes a file and saves the accepted transactions.
func (s *ImportService) Import(ctx context.Context, in Input) (*Result, error) {
	if s.sink == nil {
		return nil, ErrNoSink
	}

	result, err := s.Process(ctx, in)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "import.save")
	defer span.End()

	inserted, err := s.sink.Save(ctx, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return nil, fmt.Errorf("%w: saving batch %s: %w", ErrStore, result.BatchID, err)
	}
	result.Inserted = inserted
	span.SetAttributes(attribute.Int("rows.inserted", inserted))

	s.logger.InfoContext(ctx, "import saved",
		slog.String("batch_id", result.BatchID.String()),
		slog.String("file", in.Filename),
		slog.Int("inserted", inserted),
		slog.Int("duplicates", result.Stats.Duplicates))
	return result, nil
}

// Process runs the pipeline without persisting anything. Per-row problems are
// reported in Result.Errors; only whole-file failures return an error.
func (s *ImportService) Process(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "import.process",
		trace.WithAttributes(attribute.String("file.name", in.Filename)))
	defer span.End()

	result, err := s.process(ctx, in)
	kind := ""
	if result != nil {
		kind = string(result.Kind)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "import failed")
		s.metrics.ObserveFile(kind, "error", time.Since(start))
		s.logger.WarnContext(ctx, "import failed",
			slog.String("file", in.Filename),
			slog.Any("error", err))
		return nil, fmt.Errorf("importing %s: %w", in.Filename, err)
	}

	s.metrics.ObserveFile(kind, "ok", time.Since(start))
	s.metrics.AddRows(kind, metrics.RowSuccessful, result.Stats.Successful)
	s.metrics.AddRows(kind, metrics.RowFailed, result.Stats.Failed)
	s.metrics.AddRows(kind, metrics.RowDuplicate, result.Stats.Duplicates)

	span.SetAttributes(
		attribute.String("file.kind", kind),
		attribute.Int("rows.total", result.Stats.TotalRows),
		attribute.Int("rows.successful", result.Stats.Successful),
		attribute.Int("rows.failed", result.Stats.Failed),
		attribute.Int("rows.duplicates", result.Stats.Duplicates),
	)
	s.logger.DebugContext(ctx, "import processed",
		slog.String("batch_id", result.BatchID.String()),
		slog.String("file", in.Filename),
		slog.String("kind", kind),
		slog.Int("total", result.Stats.TotalRows),
		slog.Int("successful", result.Stats.Successful),
		slog.Int("failed", result.Stats.Failed),
		slog.Int("duplicates", result.Stats.Duplicates),
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (s *ImportService) process(ctx context.Context, in Input) (*Result, error) {
	det, err := detector.Detect(in.Filename, in.ContentType, in.Data)
	if err != nil {
		return nil, err
	}

	result := &Result{
		BatchID:      uuid.New(),
		UserID:       in.UserID,
		Filename:     in.Filename,
		Kind:         det.Kind,
		Transactions: []*normalizer.Transaction{},
		Errors:       []string{},
	}

	opts := s.opts.Normalizer
	parsed, err := s.parse(ctx, det, opts, in.Data)
	if err != nil {
		return result, err
	}
	result.Meta = parsed.Meta

	m := columnMapping(det.Kind, parsed.Meta.Headers)
	result.Mapping = m

	currency := s.opts.Currency
	if det.Kind == detector.KindCSV && len(parsed.Rows) > 0 {
		dialect := probeDialect(parsed, m)
		result.Dialect = &dialect
		opts.DecimalComma = opts.DecimalComma || dialect.DecimalComma
		opts.MonthFirst = opts.MonthFirst || dialect.MonthFirst
		if dialect.CurrencyHint != "" && money.IsKnownCurrency(dialect.CurrencyHint) {
			currency = dialect.CurrencyHint
		}
	}

	rules := s.ruleSet(ctx, in)

	outcomes, err := s.transform(ctx, parsed.Rows, rowJob{
		normalizer:  normalizer.NewNormalizer(opts),
		categorizer: s.categorizer,
		mapping:     m,
		rules:       rules,
		userID:      in.UserID,
	})
	if err != nil {
		return result, err
	}

	var rowErrs []rowError
	for _, e := range parsed.Errors {
		rowErrs = append(rowErrs, rowError{row: e.Row, msg: e.Error()})
	}

	seen := dedupe.NewSet(len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			rowErrs = append(rowErrs, rowError{row: o.row, msg: fmt.Sprintf("Row %d: %v", o.row, o.err)})
			continue
		}
		if !seen.Add(o.tx.DedupeHash) {
			result.Stats.Duplicates++
			continue
		}
		result.Transactions = append(result.Transactions, o.tx)
	}

	if result.Transactions, err = s.dropStored(ctx, in.UserID, result); err != nil {
		return result, err
	}

	sort.SliceStable(rowErrs, func(i, j int) bool { return rowErrs[i].row < rowErrs[j].row })
	for _, e := range rowErrs {
		result.Errors = append(result.Errors, e.msg)
	}
	if missing := m.Missing(); len(missing) > 0 && len(parsed.Rows) > 0 {
		result.Errors = append(result.Errors, "could not map required columns: "+strings.Join(missing, ", "))
	}
	result.Errors = append(result.Errors, parsed.Warnings...)

	result.Stats.TotalRows = len(parsed.Rows) + len(parsed.Errors)
	result.Stats.Failed = len(rowErrs)
	result.Stats.Successful = len(result.Transactions)

	totals := money.NewTotals(currency)
	for _, tx := range result.Transactions {
		if err := totals.Add(tx.Amount, tx.GSTRate); err != nil {
			return result, fmt.Errorf("computing totals: %w", err)
		}
		s.metrics.Categorized(tx.MatchedBy)
	}
	result.Totals = totals

	return result, nil
}

func (s *ImportService) parse(ctx context.Context, det detector.Detection, opts normalizer.Options, data []byte) (*parser.Result, error) {
	ctx, span := s.tracer.Start(ctx, "import.parse",
		trace.WithAttributes(attribute.String("file.kind", string(det.Kind))))
	defer span.End()

	var p parser.Parser
	switch {
	case det.Kind == detector.KindCSV:
		p = parser.NewCSVParser()
	case det.Kind == detector.KindXLSX && det.Legacy:
		p = parser.NewLegacyExcelParser()
	case det.Kind == detector.KindXLSX:
		p = parser.NewExcelParser()
	case det.Kind == detector.KindPDF:
		pdf := parser.NewPDFParser(opts)
		if s.pdfText != nil {
			pdf = pdf.WithExtractor(s.pdfText)
		}
		p = pdf
	default:
		return nil, fmt.Errorf("%w: %s", detector.ErrUnsupportedFileType, det.Kind)
	}

	res, err := p.Parse(ctx, data)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("rows.parsed", len(res.Rows)),
		attribute.Int("rows.rejected", len(res.Errors)))
	return res, nil
}

// ruleSet prefers caller-supplied rules. A failing rule source is logged and
// the file is categorized by keywords only.
func (s *ImportService) ruleSet(ctx context.Context, in Input) *categorization.RuleSet {
	var rs *categorization.RuleSet
	switch {
	case in.Rules != nil:
		rs = categorization.NewRuleSet(in.Rules)
	case s.rules != nil:
		var err error
		if rs, err = s.rules.RuleSet(ctx, in.UserID); err != nil {
			s.logger.WarnContext(ctx, "rules unavailable, using keyword categorization",
				slog.String("user_id", in.UserID),
				slog.Any("error", err))
			return nil
		}
		return rs
	default:
		return nil
	}

	for _, d := range rs.Diagnostics() {
		s.logger.WarnContext(ctx, "rule condition ignored",
			slog.String("rule_id", d.RuleID),
			slog.Int("line", d.Line),
			slog.Any("error", d.Err))
	}
	return rs
}

// dropStored removes transactions whose hash the index already holds.
func (s *ImportService) dropStored(ctx context.Context, userID string, result *Result) ([]*normalizer.Transaction, error) {
	if s.index == nil || len(result.Transactions) == 0 {
		return result.Transactions, nil
	}

	hashes := make([]string, len(result.Transactions))
	for i, tx := range result.Transactions {
		hashes[i] = tx.DedupeHash
	}
	existing, err := s.index.ExistingHashes(ctx, userID, hashes)
	if err != nil {
		return nil, fmt.Errorf("%w: checking stored hashes: %w", ErrStore, err)
	}
	if len(existing) == 0 {
		return result.Transactions, nil
	}

	kept := result.Transactions[:0]
	for _, tx := range result.Transactions {
		if existing[tx.DedupeHash] {
			result.Stats.Duplicates++
			continue
		}
		kept = append(kept, tx)
	}
	return kept, nil
}

type rowError struct {
	row int
	msg string
}

func columnMapping(kind detector.Kind, headers []string) mapping.ColumnMapping {
	if kind == detector.KindPDF {
		return mapping.FromColumns(map[mapping.Field]string{
			mapping.FieldDate:        parser.PDFColumnDate,
			mapping.FieldDescription: parser.PDFColumnDescription,
			mapping.FieldAmount:      parser.PDFColumnAmount,
		})
	}
	return mapping.Map(headers)
}

// probeDialect collects every date and the amounts of the first rows.
func probeDialect(parsed *parser.Result, m mapping.ColumnMapping) sniffer.Dialect {
	var amounts, dates []string
	for i, row := range parsed.Rows {
		if col, ok := m.Column(mapping.FieldDate); ok {
			if v := row.Get(col).Text(); v != "" {
				dates = append(dates, v)
			}
		}
		if i >= amountSampleRows {
			continue
		}
		for _, f := range []mapping.Field{mapping.FieldAmount, mapping.FieldDebit, mapping.FieldCredit} {
			if col, ok := m.Column(f); ok {
				if v := row.Get(col).Text(); v != "" {
					amounts = append(amounts, v)
				}
			}
		}
	}
	return sniffer.ProbeDialect(amounts, dates)
}

// DefaultWorkers is a sensible pool size for CPU-bound row work.
func DefaultWorkers() int {
	return max(runtime.GOMAXPROCS(0), 1)
}
