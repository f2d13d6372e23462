package aitime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnparseableTime means no grammar rule matched the expression.
	ErrUnparseableTime = errors.New("unparseable time expression")
	// ErrAmbiguousTime means the expression parsed but does not pin down an instant.
	ErrAmbiguousTime = errors.New("ambiguous time expression")
)

// Patterns for time parsing. Order of application matters: zones and relative
// offsets are consumed before clock times, clock times before dates.
var (
	zonePattern      = regexp.MustCompile(`\b(ist|utc|gmt|pst|pdt|est|edt|cet|bst)\b`)
	offsetPattern    = regexp.MustCompile(`(?:utc|gmt)?([+-])(\d{2}):?(\d{2})\s*$`)
	relativePattern  = regexp.MustCompile(`\bin\s+(\d+|a|an|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s+(minutes?|mins?|hours?|hrs?|days?|weeks?)\b`)
	fromNowPattern   = regexp.MustCompile(`\b(\d+|a|an|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s+(minutes?|mins?|hours?|hrs?|days?|weeks?)\s+from\s+now\b`)
	meridiemPattern  = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)`)
	clock24Pattern   = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	oclockPattern    = regexp.MustCompile(`\b(\d{1,2})\s*o'?clock\b`)
	bareHourPattern  = regexp.MustCompile(`\bat\s+(\d{1,2})\b`)
	namedTimePattern = regexp.MustCompile(`\b(noon|midday|midnight)\b`)
	dayPartPattern   = regexp.MustCompile(`\b(morning|afternoon|evening|night)\b`)
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dayWordPattern   = regexp.MustCompile(`\b(day after tomorrow|today|tonight|tomorrow|yesterday)\b`)
	weekdayPattern   = regexp.MustCompile(`\b(?:(this|next|coming)\s+)?(monday|mon|tuesday|tues|tue|wednesday|wed|thursday|thurs|thur|thu|friday|fri|saturday|sat|sunday|sun)\b`)
	monthDayPattern  = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s*(\d{4})\b)?`)
	dayMonthPattern  = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\b(?:,?\s*(\d{4})\b)?`)
	durationPattern  = regexp.MustCompile(`(\d+(?:\.\d+)?|a|an|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s*(hours?|hrs?|h|minutes?|mins?|m)\b`)
)

// fillerWords may remain after all recognized parts were consumed.
var fillerWords = map[string]bool{
	"at": true, "on": true, "the": true, "for": true, "by": true, "of": true,
	"this": true, "from": true, "starting": true, "around": true, "about": true,
	"and": true,
}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

var weekdayNames = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tues": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thurs": time.Thursday, "thur": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// fixedZones covers the abbreviations users actually type. Offsets are fixed;
// daylight variants are listed separately.
var fixedZones = map[string]*time.Location{
	"ist": IST,
	"utc": time.UTC,
	"gmt": time.UTC,
	"pst": time.FixedZone("PST", -8*3600),
	"pdt": time.FixedZone("PDT", -7*3600),
	"est": time.FixedZone("EST", -5*3600),
	"edt": time.FixedZone("EDT", -4*3600),
	"cet": time.FixedZone("CET", 3600),
	"bst": time.FixedZone("BST", 3600),
}

// dayParts maps vague parts of day to the window they cover.
var dayParts = map[string][2]int{
	"morning":   {8, 12},
	"afternoon": {12, 17},
	"evening":   {17, 21},
	"night":     {21, 24},
}

// isoLayouts are tried against the raw input before any grammar rule.
var isoLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

type clockTime struct {
	hour   int
	minute int
}

// expression is the decomposed form of one time expression.
type expression struct {
	date    *civilDate
	clock   *clockTime
	instant *time.Time
	loc     *time.Location
	dayPart string

	// weekdayToday is set when a bare weekday named the current day; the
	// result rolls a week forward if the resulting instant is already past.
	weekdayToday bool
}

// Parser parses English time expressions relative to a caller-supplied now.
// It never reads the wall clock.
type Parser struct {
	timezone *time.Location
}

// NewParser creates a new time parser for the given display timezone.
func NewParser(timezone *time.Location) *Parser {
	if timezone == nil {
		timezone = IST
	}
	return &Parser{timezone: timezone}
}

// Location returns the display timezone of the parser.
func (p *Parser) Location() *time.Location {
	return p.timezone
}

// parse decomposes input into date, clock, instant and zone parts.
func (p *Parser) parse(input string, now time.Time) (*expression, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty input", ErrUnparseableTime)
	}
	now = now.In(p.timezone)

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t = t.In(p.timezone)
		return &expression{instant: &t}, nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, raw, p.timezone); err == nil {
			return &expression{instant: &t}, nil
		}
	}

	s := strings.ToLower(raw)
	s = strings.NewReplacer(",", " ", "!", " ", "?", " ").Replace(s)
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	s = " " + strings.Join(strings.Fields(s), " ") + " "

	e := &expression{}

	if m := offsetPattern.FindStringSubmatchIndex(strings.TrimSpace(s)); m != nil {
		trimmed := strings.TrimSpace(s)
		sign, hh, mm := trimmed[m[2]:m[3]], trimmed[m[4]:m[5]], trimmed[m[6]:m[7]]
		h, _ := strconv.Atoi(hh)
		mi, _ := strconv.Atoi(mm)
		offset := h*3600 + mi*60
		if sign == "-" {
			offset = -offset
		}
		e.loc = time.FixedZone(sign+hh+":"+mm, offset)
		s = " " + trimmed[:m[0]] + " "
	}
	if m := zonePattern.FindStringSubmatch(s); m != nil {
		if e.loc != nil {
			return nil, fmt.Errorf("%w: two timezones in %q", ErrAmbiguousTime, raw)
		}
		e.loc = fixedZones[m[1]]
		s = zonePattern.ReplaceAllString(s, " ")
	}

	if m := firstMatch(s, relativePattern, fromNowPattern); m != nil {
		n := numberWords[m[1]]
		if n == 0 {
			n, _ = strconv.Atoi(m[1])
		}
		switch unit := strings.TrimSuffix(m[2], "s"); unit {
		case "minute", "min":
			t := now.Add(time.Duration(n) * time.Minute)
			e.instant = &t
		case "hour", "hr":
			t := now.Add(time.Duration(n) * time.Hour)
			e.instant = &t
		case "day":
			d := toCivil(now.AddDate(0, 0, n))
			e.date = &d
		case "week":
			d := toCivil(now.AddDate(0, 0, 7*n))
			e.date = &d
		}
		s = strings.Replace(s, m[0], " ", 1)
	}
	if trimmed := strings.TrimSpace(s); trimmed == "now" || trimmed == "right now" {
		t := now
		e.instant = &t
		s = " "
	}

	c, rest, err := extractClock(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableTime, err)
	}
	s = rest
	if c != nil {
		if e.instant != nil {
			return nil, fmt.Errorf("%w: both a relative offset and a clock time in %q", ErrAmbiguousTime, raw)
		}
		e.clock = c
	}

	if m := dayPartPattern.FindStringSubmatch(s); m != nil {
		e.dayPart = m[1]
		s = dayPartPattern.ReplaceAllString(s, " ")
	}

	d, rest, err := p.extractDate(s, now, e)
	if err != nil {
		return nil, err
	}
	s = rest
	if d != nil {
		if e.date != nil || e.instant != nil {
			return nil, fmt.Errorf("%w: more than one date in %q", ErrAmbiguousTime, raw)
		}
		e.date = d
	}

	for _, word := range strings.Fields(s) {
		if !fillerWords[word] {
			return nil, fmt.Errorf("%w: %q", ErrUnparseableTime, raw)
		}
	}
	if e.date == nil && e.clock == nil && e.instant == nil && e.dayPart == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnparseableTime, raw)
	}
	return e, nil
}

// extractClock consumes a clock time from s.
func extractClock(s string) (*clockTime, string, error) {
	if m := meridiemPattern.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi := 0
		if m[2] != "" {
			mi, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || mi > 59 {
			return nil, s, fmt.Errorf("invalid clock time %q", strings.TrimSpace(m[0]))
		}
		pm := strings.HasPrefix(m[3], "p")
		switch {
		case pm && h < 12:
			h += 12
		case !pm && h == 12:
			h = 0
		}
		return &clockTime{hour: h, minute: mi}, strings.Replace(s, m[0], " ", 1), nil
	}
	if m := clock24Pattern.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		if h > 23 || mi > 59 {
			return nil, s, fmt.Errorf("invalid clock time %q", m[0])
		}
		return &clockTime{hour: h, minute: mi}, strings.Replace(s, m[0], " ", 1), nil
	}
	if m := namedTimePattern.FindStringSubmatch(s); m != nil {
		c := &clockTime{hour: 12}
		if m[1] == "midnight" {
			c.hour = 0
		}
		return c, strings.Replace(s, m[0], " ", 1), nil
	}
	for _, re := range []*regexp.Regexp{oclockPattern, bareHourPattern} {
		if m := re.FindStringSubmatch(s); m != nil {
			h, _ := strconv.Atoi(m[1])
			if h > 23 {
				return nil, s, fmt.Errorf("invalid hour %d", h)
			}
			return &clockTime{hour: bareHour(h)}, strings.Replace(s, m[0], " ", 1), nil
		}
	}
	return nil, s, nil
}

// bareHour applies business-hours heuristics to an hour given without am/pm.
func bareHour(h int) int {
	if h >= 1 && h <= 7 {
		return h + 12
	}
	return h
}

// extractDate consumes a calendar date from s.
func (p *Parser) extractDate(s string, now time.Time, e *expression) (*civilDate, string, error) {
	today := toCivil(now)

	if m := isoDatePattern.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		cd, ok := validDate(y, time.Month(mo), d)
		if !ok {
			return nil, s, fmt.Errorf("%w: invalid date %q", ErrUnparseableTime, m[0])
		}
		return &cd, strings.Replace(s, m[0], " ", 1), nil
	}

	if m := dayWordPattern.FindStringSubmatch(s); m != nil {
		offset := 0
		switch m[1] {
		case "tomorrow":
			offset = 1
		case "day after tomorrow":
			offset = 2
		case "yesterday":
			offset = -1
		case "tonight":
			if e.clock == nil {
				e.clock = &clockTime{hour: 20}
			}
		}
		d := toCivil(now.AddDate(0, 0, offset))
		return &d, strings.Replace(s, m[0], " ", 1), nil
	}

	if m := weekdayPattern.FindStringSubmatch(s); m != nil {
		target := weekdayNames[m[2]]
		days := (int(target) - int(now.Weekday()) + 7) % 7
		if days == 0 {
			if m[1] == "next" {
				days = 7
			} else {
				e.weekdayToday = true
			}
		}
		d := toCivil(now.AddDate(0, 0, days))
		return &d, strings.Replace(s, m[0], " ", 1), nil
	}

	for _, pat := range []struct {
		re       *regexp.Regexp
		monthIdx int
		dayIdx   int
	}{
		{monthDayPattern, 1, 2},
		{dayMonthPattern, 2, 1},
	} {
		m := pat.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		month := monthNames[m[pat.monthIdx]]
		day, _ := strconv.Atoi(m[pat.dayIdx])
		year := today.year
		explicitYear := m[3] != ""
		if explicitYear {
			year, _ = strconv.Atoi(m[3])
		}
		cd, ok := validDate(year, month, day)
		if !ok {
			return nil, s, fmt.Errorf("%w: invalid date %q", ErrUnparseableTime, strings.TrimSpace(m[0]))
		}
		if !explicitYear && cd.before(today) {
			cd.year++
		}
		return &cd, strings.Replace(s, m[0], " ", 1), nil
	}

	return nil, s, nil
}

// Normalize resolves input to an absolute instant in the display timezone.
func (p *Parser) Normalize(input string, now time.Time) (time.Time, error) {
	e, err := p.parse(input, now)
	if err != nil {
		return time.Time{}, err
	}
	return p.instantOf(e, input, now, nil)
}

// NormalizeOn resolves input like Normalize, except that an expression carrying
// only a clock time is placed on anchor's calendar day instead of the next
// occurrence after now.
func (p *Parser) NormalizeOn(input string, now, anchor time.Time) (time.Time, error) {
	e, err := p.parse(input, now)
	if err != nil {
		return time.Time{}, err
	}
	a := toCivil(anchor.In(p.timezone))
	return p.instantOf(e, input, now, &a)
}

func (p *Parser) instantOf(e *expression, input string, now time.Time, anchor *civilDate) (time.Time, error) {
	now = now.In(p.timezone)
	if e.instant != nil {
		return e.instant.In(p.timezone), nil
	}
	if e.clock == nil {
		if e.dayPart != "" {
			return time.Time{}, fmt.Errorf("%w: %q names a part of the day, not a time", ErrAmbiguousTime, input)
		}
		return time.Time{}, fmt.Errorf("%w: %q has no time of day", ErrAmbiguousTime, input)
	}

	zone := p.timezone
	if e.loc != nil {
		zone = e.loc
	}

	switch {
	case e.date != nil:
		t := e.date.at(*e.clock, zone).In(p.timezone)
		if e.weekdayToday && t.Before(now) {
			t = t.AddDate(0, 0, 7)
		}
		return t, nil
	case anchor != nil:
		return anchor.at(*e.clock, zone).In(p.timezone), nil
	default:
		// Clock only: the next occurrence of that time.
		t := toCivil(now.In(zone)).at(*e.clock, zone).In(p.timezone)
		if t.Before(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
}

// NormalizeWindow resolves input to a time range. Day expressions cover the
// whole day, named ranges cover their span, and a single instant covers
// DefaultDuration.
func (p *Parser) NormalizeWindow(input string, now time.Time) (TimeRange, error) {
	now = now.In(p.timezone)
	s := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(input))), " ")

	if tr, ok := p.rangeKeyword(s, now); ok {
		return tr, nil
	}
	if tr, ok, err := p.explicitRange(input, now); ok || err != nil {
		return tr, err
	}

	e, err := p.parse(input, now)
	if err != nil {
		return TimeRange{}, err
	}

	if e.instant != nil || e.clock != nil {
		start, err := p.instantOf(e, input, now, nil)
		if err != nil {
			return TimeRange{}, err
		}
		return TimeRange{Start: start, End: start.Add(DefaultDuration)}, nil
	}

	date := toCivil(now)
	if e.date != nil {
		date = *e.date
	}
	if e.dayPart != "" {
		bounds := dayParts[e.dayPart]
		start := date.at(clockTime{hour: bounds[0]}, p.timezone)
		return TimeRange{Start: start, End: start.Add(time.Duration(bounds[1]-bounds[0]) * time.Hour)}, nil
	}
	start := date.at(clockTime{}, p.timezone)
	return TimeRange{Start: start, End: start.AddDate(0, 0, 1)}, nil
}

var (
	nextDaysPattern = regexp.MustCompile(`^(?:the\s+)?(?:next|coming|upcoming)\s+(\d+|a|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s+(days?|weeks?)$`)
	rangeSplit      = regexp.MustCompile(`^(?:from\s+|between\s+)?(.+?)\s+(?:to|until|till|and|-)\s+(.+)$`)
)

// rangeKeyword handles named spans such as "this week".
func (p *Parser) rangeKeyword(s string, now time.Time) (TimeRange, bool) {
	dayStart := toCivil(now).at(clockTime{}, p.timezone)
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := dayStart.AddDate(0, 0, 1-weekday)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, p.timezone)

	switch s {
	case "upcoming", "coming up", "soon":
		return TimeRange{Start: now, End: now.AddDate(0, 0, 7)}, true
	case "this week", "rest of the week", "the rest of this week":
		return TimeRange{Start: dayStart, End: monday.AddDate(0, 0, 7)}, true
	case "next week":
		return TimeRange{Start: monday.AddDate(0, 0, 7), End: monday.AddDate(0, 0, 14)}, true
	case "this weekend", "weekend", "the weekend":
		saturday := monday.AddDate(0, 0, 5)
		if dayStart.After(saturday) {
			saturday = dayStart
		}
		return TimeRange{Start: saturday, End: monday.AddDate(0, 0, 7)}, true
	case "this month":
		return TimeRange{Start: dayStart, End: monthStart.AddDate(0, 1, 0)}, true
	case "next month":
		return TimeRange{Start: monthStart.AddDate(0, 1, 0), End: monthStart.AddDate(0, 2, 0)}, true
	}

	if m := nextDaysPattern.FindStringSubmatch(s); m != nil {
		n := numberWords[m[1]]
		if n == 0 {
			n, _ = strconv.Atoi(m[1])
		}
		if strings.HasPrefix(m[2], "week") {
			n *= 7
		}
		return TimeRange{Start: now, End: now.AddDate(0, 0, n)}, true
	}
	return TimeRange{}, false
}

// explicitRange handles "from X to Y". A clock-only end is placed on the
// start's day.
func (p *Parser) explicitRange(input string, now time.Time) (TimeRange, bool, error) {
	m := rangeSplit.FindStringSubmatch(strings.ToLower(strings.TrimSpace(input)))
	if m == nil {
		return TimeRange{}, false, nil
	}
	startExpr, endExpr := m[1], m[2]
	// "day after tomorrow" and "rest of the week" contain separators; only
	// treat the input as a range when both sides parse.
	se, err := p.parse(startExpr, now)
	if err != nil {
		return TimeRange{}, false, nil
	}
	if _, err := p.parse(endExpr, now); err != nil {
		return TimeRange{}, false, nil
	}

	var start time.Time
	if se.clock == nil && se.instant == nil {
		date := toCivil(now.In(p.timezone))
		if se.date != nil {
			date = *se.date
		}
		start = date.at(clockTime{}, p.timezone)
	} else if start, err = p.instantOf(se, startExpr, now, nil); err != nil {
		return TimeRange{}, true, err
	}

	ee, _ := p.parse(endExpr, now)
	var end time.Time
	if ee.clock == nil && ee.instant == nil {
		date := toCivil(start)
		if ee.date != nil {
			date = *ee.date
		}
		end = date.at(clockTime{}, p.timezone).AddDate(0, 0, 1)
	} else if end, err = p.instantOf(ee, endExpr, now, ptr(toCivil(start))); err != nil {
		return TimeRange{}, true, err
	}

	if !end.After(start) {
		return TimeRange{}, true, fmt.Errorf("%w: range %q ends before it starts", ErrAmbiguousTime, input)
	}
	return TimeRange{Start: start, End: end}, true, nil
}

// ParseDuration parses a spoken duration such as "1 hour", "half an hour",
// "90 minutes" or "1h30m".
func ParseDuration(input string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.TrimPrefix(s, "for ")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty duration", ErrUnparseableTime)
	}

	if d, err := time.ParseDuration(strings.ReplaceAll(s, " ", "")); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("%w: non-positive duration %q", ErrUnparseableTime, input)
		}
		return d, nil
	}

	switch s {
	case "half an hour", "half hour", "a half hour":
		return 30 * time.Minute, nil
	case "an hour and a half", "one and a half hours", "hour and a half":
		return 90 * time.Minute, nil
	case "quarter of an hour", "a quarter hour", "quarter hour":
		return 15 * time.Minute, nil
	}

	matches := durationPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnparseableTime, input)
	}
	rest := durationPattern.ReplaceAllString(s, " ")
	for _, word := range strings.Fields(rest) {
		if word != "and" {
			return 0, fmt.Errorf("%w: %q", ErrUnparseableTime, input)
		}
	}

	var total time.Duration
	for _, m := range matches {
		var n float64
		if v, ok := numberWords[m[1]]; ok {
			n = float64(v)
		} else {
			n, _ = strconv.ParseFloat(m[1], 64)
		}
		unit := time.Minute
		if strings.HasPrefix(m[2], "h") {
			unit = time.Hour
		}
		total += time.Duration(n * float64(unit))
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: non-positive duration %q", ErrUnparseableTime, input)
	}
	return total, nil
}

func firstMatch(s string, patterns ...*regexp.Regexp) []string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m
		}
	}
	return nil
}

func toCivil(t time.Time) civilDate {
	return civilDate{year: t.Year(), month: t.Month(), day: t.Day()}
}

func validDate(year int, month time.Month, day int) (civilDate, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Month() != month || t.Day() != day {
		return civilDate{}, false
	}
	return civilDate{year: year, month: month, day: day}, true
}

func (d civilDate) at(c clockTime, loc *time.Location) time.Time {
	return time.Date(d.year, d.month, d.day, c.hour, c.minute, 0, 0, loc)
}

func (d civilDate) before(o civilDate) bool {
	if d.year != o.year {
		return d.year < o.year
	}
	if d.month != o.month {
		return d.month < o.month
	}
	return d.day < o.day
}

func ptr[T any](v T) *T {
	return &v
}
