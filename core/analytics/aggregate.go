package analytics

import (
	"sort"

	"github.com/telatku/telatku/core/tardiness"
)

// counter counts keys and remembers the order they were first seen in.
type counter struct {
	keys   []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.counts[key]++
}

// ranked returns the keys by count, descending; ties keep their first-seen order.
func (c *counter) ranked() []string {
	keys := append([]string(nil), c.keys...)
	sort.SliceStable(keys, func(i, j int) bool { return c.counts[keys[i]] > c.counts[keys[j]] })
	return keys
}

type studentGroup struct {
	name, nis, class string
	reasons          *counter
}

// Aggregate computes every view of the report from records, expected in chronological order.
func Aggregate(filter Filter, records []tardiness.Record) Report {
	var (
		students = newCounter()
		groups   = make(map[string]*studentGroup)
		classes  = newCounter()
		reasons  = newCounter()
		dates    = newCounter()
	)
	for _, rec := range records {
		students.add(rec.StudentID)
		grp, ok := groups[rec.StudentID]
		if !ok {
			grp = &studentGroup{name: rec.StudentName, nis: rec.StudentNIS, class: rec.ClassName, reasons: newCounter()}
			groups[rec.StudentID] = grp
		}
		grp.reasons.add(string(rec.Reason))

		classes.add(rec.ClassName)
		reasons.add(string(rec.Reason))
		dates.add(rec.Date)
	}

	report := Report{
		Filter:      filter,
		Statistics:  Statistics{TotalCount: len(records)},
		Trend:       make([]TrendPoint, 0, len(dates.keys)),
		Classes:     make([]NameCount, 0, len(classes.keys)),
		Reasons:     make([]ReasonShare, 0, len(reasons.keys)),
		TopStudents: make([]TopStudent, 0, TopStudentsLimit),
	}

	for _, id := range students.ranked() {
		if len(report.TopStudents) == TopStudentsLimit {
			break
		}
		grp := groups[id]
		report.TopStudents = append(report.TopStudents, TopStudent{
			Name:         grp.name,
			NIS:          grp.nis,
			Class:        grp.class,
			Count:        students.counts[id],
			CommonReason: tardiness.Reason(grp.reasons.ranked()[0]),
		})
	}
	for _, name := range classes.ranked() {
		report.Classes = append(report.Classes, NameCount{Name: name, Count: classes.counts[name]})
	}
	for _, r := range reasons.ranked() {
		reason := tardiness.Reason(r)
		report.Reasons = append(report.Reasons, ReasonShare{Name: reason, Label: reason.Label(), Value: reasons.counts[r]})
	}

	dateKeys := append([]string(nil), dates.keys...)
	sort.Strings(dateKeys) // YYYY-MM-DD
	for _, d := range dateKeys {
		report.Trend = append(report.Trend, TrendPoint{Date: d, Count: dates.counts[d]})
	}

	if len(report.TopStudents) > 0 {
		top := report.TopStudents[0]
		report.Statistics.TopStudent = &NameCount{Name: top.Name, Count: top.Count}
	}
	if len(report.Classes) > 0 {
		top := report.Classes[0]
		report.Statistics.TopClass = &top
	}
	if len(report.Reasons) > 0 {
		top := report.Reasons[0]
		report.Statistics.TopReason = &ReasonCount{Reason: top.Name, Label: top.Label, Count: top.Value}
	}
	return report
}
