package parser

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/FACorreiaa/statement-ingest/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/record"
)

// PDF rows use these column keys.
const (
	PDFColumnDate        = "date"
	PDFColumnDescription = "description"
	PDFColumnAmount      = "amount"
)

// TextExtractor pulls plain text out of a PDF, one line per text row.
type TextExtractor interface {
	ExtractText(data []byte) (text string, pages int, err error)
}

const (
	datePattern   = `\d{4}-\d{2}-\d{2}|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|\d{1,2}[ \-][A-Za-z]{3}[ \-]\d{2,4}`
	amountPattern = `\(?-?[₹$€£]?-?\d[\d,]*(?:\.\d{1,2})?\)?`
)

// lineTemplate recovers a (date, description, amount) triple from one line.
type lineTemplate struct {
	name               string
	re                 *regexp.Regexp
	date, desc, amount int
}

// Tried in this order; the first template that yields a valid row wins.
var lineTemplates = []lineTemplate{
	{
		name: "date_amount_description",
		re:   regexp.MustCompile(`^(` + datePattern + `)\s+(` + amountPattern + `)\s+(.+)$`),
		date: 1, amount: 2, desc: 3,
	},
	{
		name: "date_description_amount",
		re:   regexp.MustCompile(`^(` + datePattern + `)\s+(.+?)\s+(` + amountPattern + `)$`),
		date: 1, desc: 2, amount: 3,
	},
	{
		name: "description_date_amount",
		re:   regexp.MustCompile(`^(.+?)\s+(` + datePattern + `)\s+(` + amountPattern + `)$`),
		desc: 1, date: 2, amount: 3,
	},
}

// PDFParser extracts transactions from statement text. Extraction is best effort.
type PDFParser struct {
	extractor TextExtractor
	opts      normalizer.Options
}

// NewPDFParser creates a PDF parser backed by the default text extractor.
func NewPDFParser(opts normalizer.Options) *PDFParser {
	return &PDFParser{extractor: TextReader{}, opts: opts}
}

// WithExtractor swaps the text extractor.
func (p *PDFParser) WithExtractor(e TextExtractor) *PDFParser {
	p.extractor = e
	return p
}

// Parse extracts the text layer and matches each line against the templates.
func (p *PDFParser) Parse(ctx context.Context, data []byte) (*Result, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF")) {
		return nil, ErrNotPDF
	}

	text, pages, err := p.extractor.ExtractText(data)
	if err != nil {
		return nil, err
	}

	result, err := p.ParseText(ctx, text)
	if err != nil {
		return nil, err
	}
	result.Meta.Pages = pages
	return result, nil
}

// ParseText runs template matching over already extracted text. Lines that
// match no template are skipped silently.
func (p *PDFParser) ParseText(ctx context.Context, text string) (*Result, error) {
	result := &Result{
		Meta: Meta{
			Headers:      []string{PDFColumnDate, PDFColumnDescription, PDFColumnAmount},
			TemplateHits: make(map[string]int, len(lineTemplates)),
		},
	}

	for _, line := range strings.Split(text, "\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		result.Meta.LinesScanned++

		row, name, ok := p.matchLine(line, len(result.Rows)+1)
		if !ok {
			continue
		}
		result.Meta.TemplateHits[name]++
		result.Rows = append(result.Rows, row)
	}

	result.Meta.LinesMatched = len(result.Rows)
	result.Meta.DataRows = len(result.Rows)
	if len(result.Rows) == 0 {
		result.Warnings = append(result.Warnings, WarnNoTransaction)
	}
	return result, nil
}

func (p *PDFParser) matchLine(line string, rowNum int) (record.RawRow, string, bool) {
	for _, t := range lineTemplates {
		m := t.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		desc := strings.TrimSpace(m[t.desc])
		if strings.IndexFunc(desc, unicode.IsLetter) < 0 {
			continue
		}
		date, err := normalizer.NormalizeDate(m[t.date], p.opts)
		if err != nil {
			continue
		}
		if _, err := normalizer.ParseAmount(m[t.amount], p.opts); err != nil {
			continue
		}

		row := record.NewRawRow(rowNum)
		row.Set(PDFColumnDate, record.String(date))
		row.Set(PDFColumnDescription, record.String(desc))
		// The amount keeps its source text; the normalizer parses it once
		// with the same locale options.
		row.Set(PDFColumnAmount, record.String(m[t.amount]))
		return row, t.name, true
	}
	return record.RawRow{}, "", false
}

// wordGap is the horizontal distance, in points, treated as a space between
// two text runs on the same row.
const wordGap = 1.5

// TextReader extracts text with github.com/ledongthuc/pdf.
type TextReader struct{}

// ExtractText returns the text of every page, one line per text row.
// Decoder panics on malformed input are reported as ErrCorruptFile.
func (TextReader) ExtractText(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages, err = "", 0, fmt.Errorf("%w: %v", ErrCorruptFile, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}

	var b strings.Builder
	pages = reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return "", 0, fmt.Errorf("%w: page %d: %v", ErrCorruptFile, i, err)
		}
		for _, row := range rows {
			var prevEnd float64
			for j, word := range row.Content {
				if j > 0 && word.X-prevEnd > wordGap {
					b.WriteByte(' ')
				}
				b.WriteString(word.S)
				prevEnd = word.X + word.W
			}
			b.WriteByte('\n')
		}
	}

	return b.String(), pages, nil
}
