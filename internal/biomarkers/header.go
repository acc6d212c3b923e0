package biomarkers

import (
	"regexp"
	"strings"
)

var (
	dateLabelRe = regexp.MustCompile(`(?i)\b(?:collection date|collected|date collected|test date|date of test|specimen date|reported|report date|date)\s*[:#]?\s*([0-9]{1,4}[/-][0-9]{1,2}[/-][0-9]{1,4}|[0-9]{1,2}[ -][A-Za-z]{3,9}[ -][0-9]{4}|[A-Za-z]{3,9}\.? [0-9]{1,2},? [0-9]{4})`)
	labLabelRe  = regexp.MustCompile(`(?i)^\s*(?:laboratory|lab name|lab|performing lab)\s*[:#]\s*(.+?)\s*$`)
)

// ScanHeader finds the test date and lab name in free text. The date is
// returned as YYYY-MM-DD; either value may be empty.
func ScanHeader(text string) (testDate, labName string) {
	for _, line := range strings.Split(text, "\n") {
		if testDate == "" {
			if m := dateLabelRe.FindStringSubmatch(line); m != nil {
				raw := strings.ReplaceAll(strings.TrimSuffix(m[1], ","), ".", "")
				raw = strings.Replace(raw, ",", ", ", 1)
				raw = strings.Join(strings.Fields(raw), " ")
				if t, ok := ParseDate(raw); ok {
					testDate = t.Format("2006-01-02")
				}
			}
		}
		if labName == "" {
			if m := labLabelRe.FindStringSubmatch(line); m != nil {
				labName = m[1]
			}
		}
		if testDate != "" && labName != "" {
			break
		}
	}
	return testDate, labName
}
