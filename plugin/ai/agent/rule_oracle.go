package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/hrygo/calbook/plugin/ai/aitime"
	"github.com/hrygo/calbook/plugin/ai/schedule"
)

const (
	weekdayExpr = `monday|tuesday|tues|wednesday|thursday|thurs|friday|saturday|sunday`
	monthExpr   = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`
	numberExpr  = `\d+(?:\.\d+)?|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve`
	clockExpr   = `\d{1,2}(?::\d{2})?\s*(?:am|pm|a\.m\.|p\.m\.)|\d{1,2}:\d{2}|noon|midnight|\d{1,2}\s*o'?clock`
)

// Phrase patterns, applied in the order extract lists them.
var (
	notesPattern       = regexp.MustCompile(`(?i)\b(?:description|notes?|agenda)\s*:\s*(.+)$`)
	quotedPattern      = regexp.MustCompile(`"([^"]+)"|“([^”]+)”`)
	emailPattern       = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)
	isoPattern         = regexp.MustCompile(`(?i)\b\d{4}-\d{2}-\d{2}[t ]\d{2}:\d{2}(?::\d{2})?(?:z|[+-]\d{2}:?\d{2})?`)
	durationPhrase     = regexp.MustCompile(`(?i)\bfor\s+((?:` + numberExpr + `)\s*(?:hours?|hrs?|h|minutes?|mins?|m)(?:\s+(?:and\s+)?\d+\s*(?:minutes?|mins?|m))?|half\s+an\s+hour|an\s+hour\s+and\s+a\s+half)\b`)
	rangePhrase        = regexp.MustCompile(`(?i)\b(this week|next week|this weekend|the weekend|weekend|this month|next month|rest of the week|(?:the\s+)?(?:next|coming|upcoming)\s+(?:\d+|a|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s+(?:days?|weeks?))\b`)
	clockRangePattern  = regexp.MustCompile(`(?i)\b(?:from|between)\s+(` + clockExpr + `|\d{1,2})\s*(?:to|until|till|and|-)\s*(` + clockExpr + `|\d{1,2})`)
	dashRangePattern   = regexp.MustCompile(`(?i)\b(\d{1,2}(?::\d{2})?)\s*-\s*(` + clockExpr + `)`)
	relativePhrase     = regexp.MustCompile(`(?i)\bin\s+(?:` + numberExpr + `)\s+(?:minutes?|mins?|hours?|hrs?|days?|weeks?)\b`)
	clockPattern       = regexp.MustCompile(`(?i)\b(?:at\s+)?(` + clockExpr + `)`)
	bareHourPhrase     = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})\b`)
	dayPartPhrase      = regexp.MustCompile(`(?i)\b(?:in\s+the\s+|this\s+)?(morning|afternoon|evening)\b`)
	datePhrase         = regexp.MustCompile(`(?i)\b(?:on\s+)?(day after tomorrow|today|tonight|tomorrow|(?:(?:this|next|coming)\s+)?(?:` + weekdayExpr + `)|\d{4}-\d{2}-\d{2}|(?:` + monthExpr + `)\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s*\d{4})?|\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?(?:` + monthExpr + `)(?:,?\s*\d{4})?)\b`)
	meridiemSuffix     = regexp.MustCompile(`(?i)(am|pm|a\.m\.|p\.m\.)$`)
	bareNumberPattern  = regexp.MustCompile(`^\d{1,2}(?::\d{2})?$`)
	fillerPattern      = regexp.MustCompile(`(?i)\b(please|pls|can you|could you|would you|kindly|i want to|i'd like to|i need to|help me|let's|lets|for me|(?:on|in|to|from)\s+my\s+(?:calendar|schedule|diary)|my calendar)\b`)
	pronounPattern     = regexp.MustCompile(`(?i)\b(it|that|this|same)\b`)
	oneOfPattern       = regexp.MustCompile(`(?i)\b(?:the\s+)?(?:one|first|second|other)\b`)
	titleChangePattern = regexp.MustCompile(`(?i)\b(title|name)\b`)
	toSplitPattern     = regexp.MustCompile(`(?i)\s(?:to|into)\s`)
)

// Verb patterns that decide the intent kind.
var (
	leadingCreate    = regexp.MustCompile(`(?i)^(?:(?:please|pls|can you|could you|would you|i want to|i'd like to|i need to|help me|let's|lets)\s+)*(book|schedule|create|add|set up|setup|arrange|plan|put|organi[sz]e|reserve|block)\b`)
	deleteVerb       = regexp.MustCompile(`(?i)\b(cancel|delete|remove|drop|call off|scrap)\b`)
	editVerb         = regexp.MustCompile(`(?i)\b(edit|move|reschedule|change|shift|push|postpone|update|rename|modify|make it|bring forward|extend|shorten)\b`)
	availabilityWord = regexp.MustCompile(`(?i)\b(free|available|availability|busy|open slot)\b`)
	listWord         = regexp.MustCompile(`(?i)\b(what'?s|what is|what are|what do i have|do i have|show|list|agenda|anything|upcoming|see my)\b`)
	createVerb       = regexp.MustCompile(`(?i)\b(book|schedule|create|add|set up|setup|arrange|plan|organi[sz]e|reserve|block)\b`)
	correctionLead   = regexp.MustCompile(`(?i)^(?:actually|no|sorry|wait|oops|instead|rather)\b[,\s]*`)
	makeItLead       = regexp.MustCompile(`(?i)^(?:make it|change it to|move it to)\b`)
)

// edgeWords are dropped from both ends of a residual title.
var edgeWords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "our": true, "at": true, "on": true,
	"for": true, "with": true, "and": true, "to": true, "from": true, "in": true, "new": true,
	"of": true, "by": true, "is": true, "me": true, "it": true,
}

// ackWords are follow-up noise that never names a title.
var ackWords = map[string]bool{
	"yes": true, "yeah": true, "ok": true, "okay": true, "sure": true, "fine": true, "please": true, "thanks": true,
}

// RuleOracle interprets English calendar requests with a fixed grammar. It is
// deterministic and serves as the fallback when no language model is
// configured or the model fails.
type RuleOracle struct{}

var _ Oracle = (*RuleOracle)(nil)

// NewRuleOracle creates a rule-based oracle.
func NewRuleOracle() *RuleOracle {
	return &RuleOracle{}
}

// Name implements Oracle.
func (o *RuleOracle) Name() string {
	return "rules"
}

// Interpret implements Oracle.
func (o *RuleOracle) Interpret(_ context.Context, utterance string, cc ConversationContext) (schedule.Intent, error) {
	text := normalizeUtterance(utterance)
	if text == "" {
		return schedule.Intent{}, fmt.Errorf("%w: empty utterance", ErrUninterpretable)
	}

	corrected := false
	if loc := correctionLead.FindStringIndex(text); loc != nil {
		corrected = true
		text = strings.TrimSpace(text[loc[1]:])
	}

	kind, verb := detectKind(text)
	pending := cc.Pending
	followUp := pending != nil && (kind == "" || corrected && kind == pending.Kind ||
		kind == schedule.KindEditEvent && pending.Kind != schedule.KindEditEvent && makeItLead.MatchString(text))
	if followUp {
		intent := o.followUp(*pending, stripVerb(text, verb))
		if corrected {
			intent.Corrections = suppliedFields(intent)
		}
		return intent, nil
	}

	var intent schedule.Intent
	switch kind {
	case schedule.KindCreateEvent:
		intent = o.create(stripVerb(text, verb))
	case schedule.KindEditEvent:
		intent = o.edit(text, verb)
	case schedule.KindDeleteEvent:
		intent = schedule.Intent{Kind: kind, Target: targetRef(stripVerb(text, verb))}
	case schedule.KindListEvents:
		intent = o.list(text)
	case schedule.KindCheckAvailability:
		intent = o.availability(text)
	default:
		return schedule.Intent{}, fmt.Errorf("%w: %q", ErrUninterpretable, utterance)
	}
	if corrected {
		intent.Corrections = suppliedFields(intent)
	}
	return intent, nil
}

// detectKind returns the intent kind the utterance's verbs name and the verb
// match, or "" when no verb is recognized.
func detectKind(text string) (schedule.Kind, []int) {
	if m := leadingCreate.FindStringSubmatchIndex(text); m != nil {
		return schedule.KindCreateEvent, m[2:4]
	}
	for _, rule := range []struct {
		re   *regexp.Regexp
		kind schedule.Kind
	}{
		{deleteVerb, schedule.KindDeleteEvent},
		{editVerb, schedule.KindEditEvent},
		{availabilityWord, schedule.KindCheckAvailability},
		{listWord, schedule.KindListEvents},
		{createVerb, schedule.KindCreateEvent},
	} {
		if m := rule.re.FindStringSubmatchIndex(text); m != nil {
			return rule.kind, m[2:4]
		}
	}
	return "", nil
}

func (o *RuleOracle) create(body string) schedule.Intent {
	x := extract(body)
	intent := schedule.Intent{
		Kind:        schedule.KindCreateEvent,
		Start:       x.startExpr(),
		End:         x.clockEnd,
		Duration:    x.duration,
		Description: x.notes,
		Guests:      x.guests,
	}
	if intent.Start == "" {
		// A bare day ("book a dentist visit on Friday") still names the
		// start; the validator asks for the time of day.
		intent.Start = x.windowExpr()
	}
	intent.Title = x.quoted
	if intent.Title == "" {
		intent.Title = cleanTitle(x.rest)
	}
	return intent
}

func (o *RuleOracle) edit(text string, verb []int) schedule.Intent {
	verbWord := strings.ToLower(text[verb[0]:verb[1]])
	body := strings.TrimSpace(text[verb[1]:])
	intent := schedule.Intent{Kind: schedule.KindEditEvent}

	if verbWord == "make it" {
		o.applyChanges(&intent, body, false)
		intent.Target = &schedule.EventRef{Pronoun: true}
		return intent
	}

	lhs, rhs := body, ""
	if loc := toSplitPattern.FindStringIndex(" " + body + " "); loc != nil {
		// Indices refer to the padded string.
		lhs = strings.TrimSpace(body[:max(loc[0]-1, 0)])
		rhs = strings.TrimSpace(body[min(loc[1]-1, len(body)):])
	} else if m := durationPhrase.FindStringIndex(body); m != nil {
		lhs, rhs = strings.TrimSpace(body[:m[0]]+" "+body[m[1]:]), body[m[0]:m[1]]
	}

	renaming := verbWord == "rename" || titleChangePattern.MatchString(lhs)
	if renaming {
		lhs = titleChangePattern.ReplaceAllString(lhs, " ")
	}
	o.applyChanges(&intent, rhs, renaming)
	intent.Target = targetRef(lhs)
	return intent
}

// applyChanges fills the change slots of an edit from the text after "to".
func (o *RuleOracle) applyChanges(intent *schedule.Intent, rhs string, renaming bool) {
	rhs = strings.TrimSpace(rhs)
	if rhs == "" {
		return
	}
	if renaming {
		intent.Title = strings.TrimSpace(strings.Trim(rhs, `"“”`))
		return
	}
	if bareNumberPattern.MatchString(rhs) {
		intent.Start = "at " + rhs
		return
	}
	if d, err := aitime.ParseDuration(rhs); err == nil && d > 0 {
		intent.Duration = rhs
		return
	}
	x := extract(rhs)
	intent.Start = x.startExpr()
	if intent.Start == "" {
		intent.Start = x.date
	}
	intent.End = x.clockEnd
	intent.Duration = x.duration
	if x.notes != "" {
		intent.Description = x.notes
	}
}

func (o *RuleOracle) list(text string) schedule.Intent {
	x := extract(text)
	intent := schedule.Intent{Kind: schedule.KindListEvents, Title: x.quoted}
	switch {
	case x.clockEnd != "":
		intent.Start, intent.End = x.startExpr(), x.clockEnd
	default:
		intent.Range = x.windowExpr()
	}
	return intent
}

func (o *RuleOracle) availability(text string) schedule.Intent {
	x := extract(text)
	intent := schedule.Intent{Kind: schedule.KindCheckAvailability}
	if start := x.startExpr(); start != "" {
		intent.Start, intent.End, intent.Duration = start, x.clockEnd, x.duration
		return intent
	}
	intent.Range = x.windowExpr()
	return intent
}

// followUp reads text as supplementary details for the pending intent.
func (o *RuleOracle) followUp(pending schedule.Intent, text string) schedule.Intent {
	if bareNumberPattern.MatchString(strings.TrimSpace(text)) {
		text = "at " + strings.TrimSpace(text)
	}
	intent := schedule.Intent{Kind: pending.Kind}
	targetUnresolved := pending.Target == nil || pending.Target.ID == ""

	switch pending.Kind {
	case schedule.KindCreateEvent:
		intent = o.create(text)
		intent.Kind = pending.Kind
		if isAck(intent.Title) {
			intent.Title = ""
		}
	case schedule.KindEditEvent:
		if targetUnresolved && oneOfPattern.MatchString(text) {
			intent.Target = targetRef(oneOfPattern.ReplaceAllString(text, " "))
			intent.Target.Pronoun = false
			return intent
		}
		o.applyChanges(&intent, strings.TrimPrefix(strings.TrimSpace(text), "to "), false)
	case schedule.KindDeleteEvent:
		intent.Target = targetRef(oneOfPattern.ReplaceAllString(text, " "))
		intent.Target.Pronoun = false
	case schedule.KindListEvents:
		intent = o.list(text)
	case schedule.KindCheckAvailability:
		intent = o.availability(text)
	}
	return intent
}

// targetRef builds a symbolic reference from text naming an event.
func targetRef(text string) *schedule.EventRef {
	x := extract(text)
	ref := &schedule.EventRef{
		DateHint: x.windowExpr(),
		TimeHint: x.clock,
	}
	if x.iso != "" {
		ref.TimeHint = x.iso
	}
	ref.Pronoun = pronounPattern.MatchString(x.rest)
	ref.TitleHint = x.quoted
	if ref.TitleHint == "" {
		ref.TitleHint = cleanTitle(pronounPattern.ReplaceAllString(x.rest, " "))
		// "that meeting" points at the recent event, not at a title.
		if ref.Pronoun && schedule.GenericTitle(ref.TitleHint) {
			ref.TitleHint = ""
		}
	}
	if ref.IsZero() {
		ref.Pronoun = true
	}
	return ref
}

// extraction holds the phrases found in one piece of text. Time phrases keep
// the user's wording; the normalizer interprets them later.
type extraction struct {
	iso       string
	rangeExpr string
	date      string
	dayPart   string
	clock     string
	clockEnd  string
	relative  string
	duration  string
	guests    []string
	quoted    string
	notes     string
	// rest is what remains after every phrase was removed, original case.
	rest string
}

func extract(text string) extraction {
	var x extraction
	s := " " + text + " "

	take := func(re *regexp.Regexp, group int) string {
		m := re.FindStringSubmatchIndex(s)
		if m == nil {
			return ""
		}
		out := strings.TrimSpace(s[m[2*group]:m[2*group+1]])
		s = s[:m[0]] + " " + s[m[1]:]
		return out
	}

	x.notes = take(notesPattern, 1)
	if m := quotedPattern.FindStringSubmatch(s); m != nil {
		x.quoted = strings.TrimSpace(m[1] + m[2])
		s = strings.Replace(s, m[0], " ", 1)
	}
	x.guests = emailPattern.FindAllString(s, -1)
	s = emailPattern.ReplaceAllString(s, " ")

	x.iso = take(isoPattern, 0)
	x.duration = take(durationPhrase, 1)
	x.rangeExpr = take(rangePhrase, 1)

	if m := clockRangePattern.FindStringSubmatch(s); m != nil {
		x.clock, x.clockEnd = clockBounds(m[1], m[2])
		s = strings.Replace(s, m[0], " ", 1)
	} else if m := dashRangePattern.FindStringSubmatch(s); m != nil {
		x.clock, x.clockEnd = clockBounds(m[1], m[2])
		s = strings.Replace(s, m[0], " ", 1)
	}
	x.relative = take(relativePhrase, 0)
	if x.clock == "" {
		x.clock = take(clockPattern, 1)
	}
	if x.clock == "" {
		if h := take(bareHourPhrase, 1); h != "" {
			x.clock = "at " + h
		}
	}
	x.dayPart = take(dayPartPhrase, 1)
	x.date = take(datePhrase, 1)

	s = fillerPattern.ReplaceAllString(s, " ")
	x.rest = strings.Join(strings.Fields(s), " ")
	return x
}

// clockBounds completes a clock range, letting a bare start borrow the end's
// am/pm ("from 2 to 3 pm").
func clockBounds(start, end string) (string, string) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	fix := func(c, other string) string {
		if !bareNumberPattern.MatchString(c) || strings.Contains(c, ":") {
			return c
		}
		if m := meridiemSuffix.FindString(other); m != "" {
			return c + " " + m
		}
		return "at " + c
	}
	return fix(start, end), fix(end, start)
}

// startExpr is the instant the phrases name, or "" when they name none.
func (x extraction) startExpr() string {
	switch {
	case x.iso != "":
		return x.iso
	case x.relative != "":
		return joinNonEmpty(x.relative, x.clock)
	case x.clock != "":
		return joinNonEmpty(x.date, x.clock)
	}
	return ""
}

// windowExpr is the span the phrases name, or "" when they name none.
func (x extraction) windowExpr() string {
	if x.rangeExpr != "" {
		return x.rangeExpr
	}
	if x.date != "" || x.dayPart != "" {
		return joinNonEmpty(x.date, x.dayPart)
	}
	return ""
}

func normalizeUtterance(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".?! ")
}

// stripVerb removes the verb at loc from text.
func stripVerb(text string, loc []int) string {
	if loc == nil {
		return text
	}
	return strings.TrimSpace(text[:loc[0]] + " " + text[loc[1]:])
}

// cleanTitle trims connecting words from both ends of a residual phrase.
func cleanTitle(s string) string {
	words := strings.Fields(strings.Trim(s, " ,;:-"))
	for len(words) > 0 && edgeWords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for len(words) > 0 && edgeWords[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return ""
	}
	return upperFirst(strings.Join(words, " "))
}

func upperFirst(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func isAck(s string) bool {
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if !ackWords[strings.Trim(w, ",.!")] {
			return false
		}
	}
	return true
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// suppliedFields lists the slots intent fills, for marking corrections.
func suppliedFields(intent schedule.Intent) []string {
	var fields []string
	for _, f := range []string{
		schedule.FieldTitle, schedule.FieldStart, schedule.FieldEnd, schedule.FieldDuration,
		schedule.FieldDescription, schedule.FieldRange, schedule.FieldGuests, schedule.FieldTarget,
	} {
		if intent.Has(f) {
			fields = append(fields, f)
		}
	}
	return fields
}
