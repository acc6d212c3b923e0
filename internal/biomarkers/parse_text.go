package biomarkers

import (
	"regexp"
	"strings"
	"unicode"
)

// Confidence assigned to regex-extracted readings when the source has no
// per-line confidence of its own.
const PatternConfidence = 0.6

var (
	valueRe = regexp.MustCompile(`^[\s:=\-–|,]*(<=|>=|≤|≥|<|>)?\s*(` + numberPattern + `)`)
	unitRe  = regexp.MustCompile(`^\s*((?:x?10\^?[eE]?\d+\s*/\s*|/)?[a-zA-Zµμ%][a-zA-Z0-9µμ%/.^²]*)`)
	flagRe  = regexp.MustCompile(`(?i)(?:^|[\s(\[*])(critical|crit|high|low|hh|ll|h|l)(?:$|[\s)\]*])`)
)

// ParseText extracts readings from free text one line at a time. Each line
// yields at most one reading.
func ParseText(text string, page int) []Reading {
	return DefaultCatalog().ParseText(text, page)
}

// ParseText extracts readings using this catalog's aliases.
func (c *Catalog) ParseText(text string, page int) []Reading {
	var out []Reading
	for _, line := range strings.Split(text, "\n") {
		if r, ok := c.parseLine(line, page); ok {
			out = append(out, r)
		}
	}
	return out
}

func (c *Catalog) parseLine(line string, page int) (Reading, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Reading{}, false
	}
	entry, end, ok := c.matchLine(line)
	if !ok {
		return Reading{}, false
	}
	tail := line[end:]
	// qualifiers such as "Vitamin D, 25-Hydroxy" or "Glucose (fasting)" sit between name and value
	tail = skipQualifier(tail)

	m := valueRe.FindStringSubmatchIndex(tail)
	if m == nil {
		return Reading{}, false
	}
	comparator := ""
	if m[2] >= 0 {
		comparator = normalizeComparator(tail[m[2]:m[3]])
	}
	numText := tail[m[4]:m[5]]
	value, err := parseNumber(numText)
	if err != nil {
		return Reading{}, false
	}
	rest := tail[m[1]:]

	r := Reading{
		Name:       entry.Name,
		Value:      floatPtr(value),
		ValueText:  comparator + numText,
		Comparator: comparator,
		Confidence: PatternConfidence,
		Page:       page,
		Category:   entry.Category,
	}

	if um := unitRe.FindStringSubmatchIndex(rest); um != nil {
		candidate := rest[um[2]:um[3]]
		if isFlagWord(candidate) && !c.IsUnit(candidate) {
			r.Flag = candidate
		} else {
			r.Unit = candidate
		}
		rest = rest[um[1]:]
	}

	if loc := betweenRangeRe.FindStringIndex(rest); loc != nil {
		r.ReferenceRange = strings.TrimSpace(rest[loc[0]:loc[1]])
		rest = rest[:loc[0]] + " " + rest[loc[1]:]
	} else if loc := boundRangeRe.FindStringIndex(rest); loc != nil {
		r.ReferenceRange = strings.TrimSpace(rest[loc[0]:loc[1]])
		rest = rest[:loc[0]] + " " + rest[loc[1]:]
	}
	r.RefLow, r.RefHigh, _ = ParseRange(r.ReferenceRange)

	if r.Unit == "" {
		r.Unit = c.findUnit(rest)
	}
	if r.Flag == "" {
		if fm := flagRe.FindStringSubmatch(rest); fm != nil {
			r.Flag = fm[1]
		}
	}
	return r, true
}

func skipQualifier(tail string) string {
	trimmed := strings.TrimLeft(tail, " \t")
	if strings.HasPrefix(trimmed, "(") {
		if idx := strings.Index(trimmed, ")"); idx > 0 && !containsDigitRun(trimmed[:idx]) {
			return trimmed[idx+1:]
		}
	}
	if strings.HasPrefix(trimmed, ",") {
		rest := strings.TrimLeft(trimmed[1:], " ")
		i := 0
		for i < len(rest) && rest[i] != ' ' && rest[i] != '\t' && rest[i] != ':' {
			i++
		}
		word := rest[:i]
		if strings.IndexFunc(word, unicode.IsLetter) >= 0 {
			return rest[i:]
		}
	}
	return tail
}

func (c *Catalog) findUnit(rest string) string {
	for _, tok := range strings.Fields(rest) {
		tok = strings.Trim(tok, "()[],;")
		if c.IsUnit(tok) {
			return tok
		}
	}
	return ""
}

func isFlagWord(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "h", "l", "hh", "ll", "high", "low", "critical", "crit":
		return true
	}
	return false
}

func normalizeComparator(c string) string {
	switch c {
	case "≤":
		return "<="
	case "≥":
		return ">="
	}
	return c
}

func containsDigitRun(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

