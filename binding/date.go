package binding

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// (UNIT±N)-format, e.g. (DAY-1)-YYYY-MM-DD
var dateExprRe = regexp.MustCompile(`^\(([A-Z]+)([+-]\d+)\)-(.+)$`)

// CalcDate evaluates a relative-date expression against base. The expression
// is an optional "(UNIT±N)-" offset with UNIT one of DAY, MONTH or YEAR,
// followed by a date format. Without an offset the whole expression is the
// format.
func CalcDate(expr string, base time.Time) string {
	date := base
	layout := expr
	if m := dateExprRe.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[2])
		if err == nil {
			switch m[1] {
			case "DAY":
				date = base.AddDate(0, 0, n)
			case "MONTH":
				date = addMonths(base, n)
			case "YEAR":
				date = addMonths(base, 12*n)
			}
		}
		layout = m[3]
	}
	return FormatDate(date, layout)
}

// addMonths moves t by n months, clamping the day to the length of the
// target month: Jan 31 + 1 month is the last day of February.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// FormatDate formats t with a moment/date-fns style pattern. Supported tokens:
// yyyy/YYYY yy/YY, M MM MMM MMMM, d dd D DD, H HH, h hh, m mm, s ss, S..S,
// a/A and EEE/EEEE. Text inside single quotes is copied verbatim; '' is a
// literal quote.
func FormatDate(t time.Time, layout string) string {
	var b strings.Builder
	rs := []rune(layout)
	for i := 0; i < len(rs); {
		c := rs[i]
		if c == '\'' {
			j := i + 1
			if j < len(rs) && rs[j] == '\'' {
				b.WriteRune('\'')
				i += 2
				continue
			}
			for j < len(rs) && rs[j] != '\'' {
				b.WriteRune(rs[j])
				j++
			}
			i = j + 1
			continue
		}
		j := i
		for j < len(rs) && rs[j] == c {
			j++
		}
		b.WriteString(dateToken(t, c, j-i))
		i = j
	}
	return b.String()
}

func dateToken(t time.Time, c rune, n int) string {
	switch c {
	case 'y', 'Y':
		if n == 2 {
			return fmt.Sprintf("%02d", t.Year()%100)
		}
		return fmt.Sprintf("%04d", t.Year())
	case 'M':
		switch {
		case n >= 4:
			return t.Month().String()
		case n == 3:
			return t.Month().String()[:3]
		case n == 2:
			return fmt.Sprintf("%02d", int(t.Month()))
		}
		return strconv.Itoa(int(t.Month()))
	case 'd', 'D':
		if n >= 2 {
			return fmt.Sprintf("%02d", t.Day())
		}
		return strconv.Itoa(t.Day())
	case 'H':
		if n >= 2 {
			return fmt.Sprintf("%02d", t.Hour())
		}
		return strconv.Itoa(t.Hour())
	case 'h':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		if n >= 2 {
			return fmt.Sprintf("%02d", h)
		}
		return strconv.Itoa(h)
	case 'm':
		if n >= 2 {
			return fmt.Sprintf("%02d", t.Minute())
		}
		return strconv.Itoa(t.Minute())
	case 's':
		if n >= 2 {
			return fmt.Sprintf("%02d", t.Second())
		}
		return strconv.Itoa(t.Second())
	case 'S':
		frac := fmt.Sprintf("%09d", t.Nanosecond())
		if n > 9 {
			n = 9
		}
		return frac[:n]
	case 'a', 'A':
		if t.Hour() < 12 {
			return "AM"
		}
		return "PM"
	case 'E':
		if n >= 4 {
			return t.Weekday().String()
		}
		return t.Weekday().String()[:3]
	}
	return strings.Repeat(string(c), n)
}
