// Package stats derives read-only views from ledger transactions.
//
// Each range key (day, week, month, year) is a strategy that knows its
// calendar bounds, its chart buckets and how to place an instant in a
// bucket. All computations happen in the location of the reference time.
package stats

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	Day   RangeKey = "day"
	Week  RangeKey = "week"
	Month RangeKey = "month"
	Year  RangeKey = "year"
)

var ErrInvalidRange = errors.New("invalid range")

// RangeKey names a calendar period relative to a reference instant.
type RangeKey string

// Range is an inclusive interval. To is the last millisecond of the period.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range at millisecond resolution.
func (r Range) Contains(t time.Time) bool {
	ms := t.UnixMilli()
	return ms >= r.From.UnixMilli() && ms <= r.To.UnixMilli()
}

// Resolver is the strategy implemented by every range key.
type Resolver interface {
	// Bounds returns the period containing ref.
	Bounds(ref time.Time) Range
	// Labels returns the chart bucket labels for the period containing ref.
	Labels(ref time.Time) []string
	// Bucket returns the bucket index of t, which must already be
	// expressed in the reference location.
	Bucket(t time.Time) int
}

const lastMilli = 999 * int(time.Millisecond)

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, lastMilli, t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// DayResolver splits a calendar day into 24 hourly buckets.
type DayResolver struct{}

func (DayResolver) Bounds(ref time.Time) Range {
	return Range{From: startOfDay(ref), To: endOfDay(ref)}
}

func (DayResolver) Labels(time.Time) []string {
	labels := make([]string, 24)
	for h := range labels {
		labels[h] = strconv.Itoa(h)
	}
	return labels
}

func (DayResolver) Bucket(t time.Time) int {
	return clamp(t.Hour(), 0, 23)
}

// WeekResolver covers Monday through Sunday.
type WeekResolver struct{}

var weekdayLabels = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func (WeekResolver) Bounds(ref time.Time) Range {
	offset := mondayIndex(ref)
	y, m, d := ref.Date()
	loc := ref.Location()
	return Range{
		From: time.Date(y, m, d-offset, 0, 0, 0, 0, loc),
		To:   time.Date(y, m, d-offset+6, 23, 59, 59, lastMilli, loc),
	}
}

func (WeekResolver) Labels(time.Time) []string {
	return append([]string(nil), weekdayLabels...)
}

func (WeekResolver) Bucket(t time.Time) int {
	return mondayIndex(t)
}

// mondayIndex maps Monday..Sunday to 0..6.
func mondayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// MonthResolver has one bucket per day of the month.
type MonthResolver struct{}

func (MonthResolver) Bounds(ref time.Time) Range {
	y, m, _ := ref.Date()
	loc := ref.Location()
	return Range{
		From: time.Date(y, m, 1, 0, 0, 0, 0, loc),
		To:   time.Date(y, m, daysIn(y, m, loc), 23, 59, 59, lastMilli, loc),
	}
}

func (MonthResolver) Labels(ref time.Time) []string {
	n := daysIn(ref.Year(), ref.Month(), ref.Location())
	labels := make([]string, n)
	for d := range labels {
		labels[d] = strconv.Itoa(d + 1)
	}
	return labels
}

func (MonthResolver) Bucket(t time.Time) int {
	return clamp(t.Day()-1, 0, 30)
}

// YearResolver has one bucket per month.
type YearResolver struct{}

var monthLabels = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func (YearResolver) Bounds(ref time.Time) Range {
	y := ref.Year()
	loc := ref.Location()
	return Range{
		From: time.Date(y, time.January, 1, 0, 0, 0, 0, loc),
		To:   time.Date(y, time.December, 31, 23, 59, 59, lastMilli, loc),
	}
}

func (YearResolver) Labels(time.Time) []string {
	return append([]string(nil), monthLabels...)
}

func (YearResolver) Bucket(t time.Time) int {
	return clamp(int(t.Month())-1, 0, 11)
}

var resolvers = map[RangeKey]Resolver{
	Day:   DayResolver{},
	Week:  WeekResolver{},
	Month: MonthResolver{},
	Year:  YearResolver{},
}

// ParseRangeKey validates user input.
func ParseRangeKey(s string) (RangeKey, error) {
	k := RangeKey(s)
	if _, ok := resolvers[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	return k, nil
}

// ResolverFor returns the strategy for k. Unknown keys resolve as Year.
func ResolverFor(k RangeKey) Resolver {
	if r, ok := resolvers[k]; ok {
		return r
	}
	return resolvers[Year]
}

// Bounds returns the inclusive period of kind k that contains ref.
func Bounds(k RangeKey, ref time.Time) Range {
	return ResolverFor(k).Bounds(ref)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
