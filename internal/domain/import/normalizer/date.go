package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/statement-ingest/internal/domain/import/record"
)

// ISODate is the canonical output layout.
const ISODate = "2006-01-02"

// Spreadsheet serials beyond 9999-12-31 are not dates.
const maxSerial = 2958465

var (
	isoPrefix   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:$|[T ])`)
	yearFirst   = regexp.MustCompile(`^(\d{4})[/.](\d{1,2})[/.](\d{1,2})$`)
	numericDate = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4}|\d{2})(?:$|[T ])`)
	serialDate  = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

// Layouts with a textual month. The bool marks a two-digit year.
var textualLayouts = []struct {
	layout  string
	twoYear bool
}{
	{"2 Jan 2006", false},
	{"2-Jan-2006", false},
	{"2 January 2006", false},
	{"Jan 2, 2006", false},
	{"Jan 2 2006", false},
	{"January 2, 2006", false},
	{"2 Jan 06", true},
	{"2-Jan-06", true},
}

// ParseDate parses a statement date into a calendar date (UTC midnight).
func ParseDate(raw string, opts Options) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}

	if m := isoPrefix.FindStringSubmatch(s); m != nil {
		return civil(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}

	if m := yearFirst.FindStringSubmatch(s); m != nil {
		return civil(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}

	if m := numericDate.FindStringSubmatch(s); m != nil {
		first, second := atoi(m[1]), atoi(m[2])
		year := expandYear(m[3], opts.now())

		day, month := first, second
		switch {
		case first > 12:
		case second > 12 || opts.MonthFirst:
			day, month = second, first
		}
		return civil(year, month, day)
	}

	if serialDate.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil {
			return fromSerial(f)
		}
	}

	for _, l := range textualLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		year := t.Year()
		if l.twoYear {
			year = century(opts.now()) + year%100
		}
		return civil(year, int(t.Month()), t.Day())
	}

	return time.Time{}, fmt.Errorf("%w: unrecognized format %q", ErrInvalidDate, s)
}

// parseDateValue accepts text dates and numeric spreadsheet serials.
func parseDateValue(v record.Value, opts Options) (time.Time, error) {
	if f, ok := v.Float(); ok {
		return fromSerial(f)
	}
	return ParseDate(v.Text(), opts)
}

// NormalizeDate returns the ISO form of raw.
func NormalizeDate(raw string, opts Options) (string, error) {
	t, err := ParseDate(raw, opts)
	if err != nil {
		return "", err
	}
	return t.Format(ISODate), nil
}

func fromSerial(serial float64) (time.Time, error) {
	if serial < 1 || serial > maxSerial {
		return time.Time{}, fmt.Errorf("%w: serial %v out of range", ErrInvalidDate, serial)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return civil(t.Year(), int(t.Month()), t.Day())
}

// civil builds a date and rejects impossible ones such as 31/02.
func civil(year, month, day int) (time.Time, error) {
	if year < 1900 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d out of range", ErrInvalidDate, year, month, day)
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d does not exist", ErrInvalidDate, year, month, day)
	}
	return t, nil
}

func expandYear(s string, now time.Time) int {
	y := atoi(s)
	if len(s) == 2 {
		return century(now) + y
	}
	return y
}

func century(now time.Time) int {
	return now.Year() / 100 * 100
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
