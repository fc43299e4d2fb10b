// Package metrics derives read-only statistics from a visible
// observation set. Every function is pure: it takes the set plus a
// reference instant and writes nothing back.
package metrics

import (
	"sort"
	"time"

	"safetrack/internal/domain"
)

// Count is a labeled tally used by leaderboards and histograms.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// MonthBucket is one point in the observation time series.
type MonthBucket struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Dashboard is the compact progress view: the newest record plus the
// monthly and yearly target standing.
type Dashboard struct {
	LatestRecord    string  `json:"latest_record,omitempty"`
	MonthlyCount    int     `json:"monthly_count"`
	MonthlyTarget   int     `json:"monthly_target"`
	MonthlyProgress float64 `json:"monthly_progress"`
	YearlyCount     int     `json:"yearly_count"`
	YearlyTarget    int     `json:"yearly_target"`
	YearlyProgress  float64 `json:"yearly_progress"`
}

// Summary is the full dashboard payload.
type Summary struct {
	Total             int            `json:"total"`
	MonthlyCount      int            `json:"monthly_count"`
	YearlyCount       int            `json:"yearly_count"`
	MonthlyProgress   float64        `json:"monthly_progress"`
	YearlyProgress    float64        `json:"yearly_progress"`
	CompletionRate    float64        `json:"completion_rate"`
	ActiveActions     int            `json:"active_actions"`
	Leader30Days      string         `json:"leader_30_days"`
	LeaderYTD         string         `json:"leader_ytd"`
	TopAssignees      []Count        `json:"top_assignees"`
	Defaulters        []string       `json:"defaulters"`
	StatusHistogram   map[string]int `json:"status_histogram"`
	CategoryHistogram map[string]int `json:"category_histogram"`
	TimeSeries        []MonthBucket  `json:"time_series"`
	AvgResolutionTime string         `json:"avg_resolution_time,omitempty"`
	LatestRecord      string         `json:"latest_record,omitempty"`
}

func parseTS(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ProgressRatio is count/target clamped to [0, 1]. A non-positive
// target yields 0.
func ProgressRatio(count, target int) float64 {
	if target <= 0 {
		return 0
	}
	r := float64(count) / float64(target)
	if r > 1 {
		return 1
	}
	return r
}

// MonthlyCount counts observations created in now's calendar month.
func MonthlyCount(obs []domain.Observation, now time.Time) int {
	n := 0
	for _, o := range obs {
		t, ok := parseTS(o.CreatedAt)
		if !ok {
			continue
		}
		if t.Year() == now.Year() && t.Month() == now.Month() {
			n++
		}
	}
	return n
}

// YearlyCount counts observations created in now's calendar year.
func YearlyCount(obs []domain.Observation, now time.Time) int {
	n := 0
	for _, o := range obs {
		t, ok := parseTS(o.CreatedAt)
		if !ok {
			continue
		}
		if t.Year() == now.Year() {
			n++
		}
	}
	return n
}

// CompletionRate is completed actionable over total actionable, 0 when
// the actionable set is empty.
func CompletionRate(obs []domain.Observation) float64 {
	total, completed := 0, 0
	for _, o := range obs {
		if !o.IsActionable {
			continue
		}
		total++
		if o.ActionStatus != nil && *o.ActionStatus == domain.ActionCompleted {
			completed++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total)
}

// ActiveActions counts actionable observations whose action has not
// completed yet.
func ActiveActions(obs []domain.Observation) int {
	n := 0
	for _, o := range obs {
		if !o.IsActionable {
			continue
		}
		if o.ActionStatus == nil || *o.ActionStatus != domain.ActionCompleted {
			n++
		}
	}
	return n
}

// Leaderboard returns the observer with the most observations created
// after now-window. Ties break on count descending, then name
// ascending. Empty string when no observation falls in the window.
func Leaderboard(obs []domain.Observation, now time.Time, window time.Duration) string {
	cutoff := now.Add(-window)
	counts := map[string]int{}
	for _, o := range obs {
		t, ok := parseTS(o.CreatedAt)
		if !ok || !t.After(cutoff) {
			continue
		}
		counts[o.ObserverSnapshot.Name]++
	}
	return topName(counts)
}

// LeaderboardYTD is Leaderboard over the calendar year to date.
func LeaderboardYTD(obs []domain.Observation, now time.Time) string {
	counts := map[string]int{}
	for _, o := range obs {
		t, ok := parseTS(o.CreatedAt)
		if !ok || t.Year() != now.Year() || t.After(now) {
			continue
		}
		counts[o.ObserverSnapshot.Name]++
	}
	return topName(counts)
}

func topName(counts map[string]int) string {
	best, bestCount := "", 0
	for name, c := range counts {
		if c > bestCount || (c == bestCount && c > 0 && name < best) {
			best, bestCount = name, c
		}
	}
	return best
}

// TopAssignees groups actionable observations by assignee display name
// and returns the three largest groups, count descending then name
// ascending. The name is resolved from any observer snapshot matching
// the assignee id, falling back to the raw id.
func TopAssignees(obs []domain.Observation) []Count {
	names := map[string]string{}
	for _, o := range obs {
		names[o.ObserverSnapshot.ID] = o.ObserverSnapshot.Name
	}
	counts := map[string]int{}
	for _, o := range obs {
		if !o.IsActionable || o.ActionAssigneeID == nil {
			continue
		}
		name, ok := names[*o.ActionAssigneeID]
		if !ok {
			name = *o.ActionAssigneeID
		}
		counts[name]++
	}
	out := make([]Count, 0, len(counts))
	for name, c := range counts {
		out = append(out, Count{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// Defaulters returns the names of directory identities that submitted
// nothing in now's calendar month, sorted ascending.
func Defaulters(obs []domain.Observation, roster []domain.Identity, now time.Time) []string {
	submitted := map[string]bool{}
	for _, o := range obs {
		t, ok := parseTS(o.CreatedAt)
		if !ok {
			continue
		}
		if t.Year() == now.Year() && t.Month() == now.Month() {
			submitted[o.ObserverSnapshot.ID] = true
		}
	}
	out := []string{}
	for _, ident := range roster {
		if !submitted[ident.ID] {
			out = append(out, ident.Name)
		}
	}
	sort.Strings(out)
	return out
}

// TimeSeries buckets observations by calendar month and returns the
// last six buckets in ascending month order.
func TimeSeries(obs []domain.Observation) []MonthBucket {
	counts := map[string]int{}
	for _, o := range obs {
		t, ok := parseTS(o.CreatedAt)
		if !ok {
			continue
		}
		counts[t.Format("2006-01")]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 6 {
		keys = keys[len(keys)-6:]
	}
	out := make([]MonthBucket, 0, len(keys))
	for _, k := range keys {
		out = append(out, MonthBucket{Month: k, Count: counts[k]})
	}
	return out
}

// StatusHistogram counts observations per review status.
func StatusHistogram(obs []domain.Observation) map[string]int {
	out := map[string]int{
		string(domain.StatusOpen):    0,
		string(domain.StatusPending): 0,
		string(domain.StatusClosed):  0,
	}
	for _, o := range obs {
		out[string(o.Status)]++
	}
	return out
}

// CategoryHistogram counts observations per category.
func CategoryHistogram(obs []domain.Observation) map[string]int {
	out := map[string]int{}
	for _, o := range obs {
		out[o.Category]++
	}
	return out
}

// AvgResolutionTime is the mean duration between action assignment and
// completion over completed actionable observations. Zero when no
// completed action carries both timestamps.
func AvgResolutionTime(obs []domain.Observation) time.Duration {
	var total time.Duration
	n := 0
	for _, o := range obs {
		if !o.IsActionable || o.ActionStatus == nil || *o.ActionStatus != domain.ActionCompleted {
			continue
		}
		if o.ActionAssignedAt == nil || o.ActionCompletedAt == nil {
			continue
		}
		assigned, ok1 := parseTS(*o.ActionAssignedAt)
		completed, ok2 := parseTS(*o.ActionCompletedAt)
		if !ok1 || !ok2 || completed.Before(assigned) {
			continue
		}
		total += completed.Sub(assigned)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

// LatestRecord returns the newest createdAt in the set, empty for an
// empty set.
func LatestRecord(obs []domain.Observation) string {
	var best time.Time
	out := ""
	for _, o := range obs {
		t, ok := parseTS(o.CreatedAt)
		if !ok {
			continue
		}
		if t.After(best) {
			best, out = t, o.CreatedAt
		}
	}
	return out
}

// DashboardView computes the compact progress view for a visible set.
func DashboardView(obs []domain.Observation, now time.Time, monthlyTarget, yearlyTarget int) Dashboard {
	monthly := MonthlyCount(obs, now)
	yearly := YearlyCount(obs, now)
	return Dashboard{
		LatestRecord:    LatestRecord(obs),
		MonthlyCount:    monthly,
		MonthlyTarget:   monthlyTarget,
		MonthlyProgress: ProgressRatio(monthly, monthlyTarget),
		YearlyCount:     yearly,
		YearlyTarget:    yearlyTarget,
		YearlyProgress:  ProgressRatio(yearly, yearlyTarget),
	}
}

// Summarize computes the full dashboard for a visible set.
func Summarize(obs []domain.Observation, roster []domain.Identity, now time.Time, monthlyTarget, yearlyTarget int) Summary {
	monthly := MonthlyCount(obs, now)
	yearly := YearlyCount(obs, now)
	s := Summary{
		Total:             len(obs),
		MonthlyCount:      monthly,
		YearlyCount:       yearly,
		MonthlyProgress:   ProgressRatio(monthly, monthlyTarget),
		YearlyProgress:    ProgressRatio(yearly, yearlyTarget),
		CompletionRate:    CompletionRate(obs),
		ActiveActions:     ActiveActions(obs),
		Leader30Days:      Leaderboard(obs, now, 30*24*time.Hour),
		LeaderYTD:         LeaderboardYTD(obs, now),
		TopAssignees:      TopAssignees(obs),
		Defaulters:        Defaulters(obs, roster, now),
		StatusHistogram:   StatusHistogram(obs),
		CategoryHistogram: CategoryHistogram(obs),
		TimeSeries:        TimeSeries(obs),
		LatestRecord:      LatestRecord(obs),
	}
	if d := AvgResolutionTime(obs); d > 0 {
		s.AvgResolutionTime = d.Round(time.Minute).String()
	}
	return s
}
