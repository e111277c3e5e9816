package binding

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	reThousandD = regexp.MustCompile(`#,##0\.([0#]+)`)
	reFixedD    = regexp.MustCompile(`^0\.([0#]+)$`)
	reDate      = regexp.MustCompile(`(?i)[yMdHms]`)
	reQuoted    = regexp.MustCompile(`"([^"]*)"`)
	rePercentD  = regexp.MustCompile(`\.([0#]+)`)
)

// excelEpoch is day zero of the Excel 1900 date system.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.Local)

var printer = message.NewPrinter(language.English)

// ExcelFormat formats val with an Excel style number format. Formats that
// contain date letters treat val as a date (time.Time, Excel serial number or
// parseable date string). Every other format requires a number; anything else
// yields "".
func ExcelFormat(val any, format string) string {
	if reDate.MatchString(format) {
		d, ok := toDate(val)
		if !ok {
			return ""
		}
		return FormatDate(d, reQuoted.ReplaceAllString(format, "'$1'"))
	}

	v, ok := toNumber(val)
	if !ok {
		return ""
	}

	if strings.HasSuffix(format, "%") {
		decimals := 0
		if m := rePercentD.FindStringSubmatch(format); m != nil {
			decimals = len(m[1])
		}
		return strconv.FormatFloat(v*100, 'f', decimals, 64) + "%"
	}

	if hasThousandInt(format) {
		return printer.Sprintf("%v", number.Decimal(int64(jsRound(v))))
	}

	if m := reThousandD.FindStringSubmatch(format); m != nil {
		d := len(m[1])
		return printer.Sprintf("%v", number.Decimal(v, number.MinFractionDigits(d), number.MaxFractionDigits(d)))
	}

	if m := reFixedD.FindStringSubmatch(format); m != nil {
		return strconv.FormatFloat(v, 'f', len(m[1]), 64)
	}

	if format == "0" {
		return strconv.FormatInt(int64(jsRound(v)), 10)
	}

	return strconv.FormatFloat(v, 'f', -1, 64)
}

// hasThousandInt reports whether format contains "#,##0" not followed by a
// decimal point.
func hasThousandInt(format string) bool {
	const tok = "#,##0"
	for rest := format; ; {
		i := strings.Index(rest, tok)
		if i < 0 {
			return false
		}
		rest = rest[i+len(tok):]
		if !strings.HasPrefix(rest, ".") {
			return true
		}
	}
}

// jsRound rounds half toward positive infinity.
func jsRound(v float64) float64 {
	return math.Floor(v + 0.5)
}

func toNumber(val any) (float64, bool) {
	var f float64
	switch n := val.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateTime,
	time.DateOnly,
	"20060102150405",
	"20060102",
}

func toDate(val any) (time.Time, bool) {
	switch d := val.(type) {
	case time.Time:
		return d, true
	case *time.Time:
		if d == nil {
			return time.Time{}, false
		}
		return *d, true
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, d, time.Local); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}
	if n, ok := toNumber(val); ok {
		return serialToDate(n), true
	}
	return time.Time{}, false
}

func serialToDate(serial float64) time.Time {
	days := math.Floor(serial)
	frac := serial - days
	return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(frac * float64(24*time.Hour)))
}
