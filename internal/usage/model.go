package usage

import (
	"strings"
	"time"
)

// Usage is a user's upload quota for the current window.
type Usage struct {
	Plan     string    `json:"plan"`
	Limit    int       `json:"limit"`
	Used     int       `json:"used"`
	ResetsAt time.Time `json:"resetsAt"`
}

// Remaining never goes below zero.
func (u Usage) Remaining() int {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}

const (
	PlanFree  = "free"
	PlanBasic = "basic"
	PlanPro   = "pro"

	window = 30 * 24 * time.Hour
)

var planLimits = map[string]int{
	PlanFree:  5,
	PlanBasic: 25,
	PlanPro:   100,
}

// NormalizePlan maps unknown or empty plans to free.
func NormalizePlan(plan string) string {
	p := strings.ToLower(strings.TrimSpace(plan))
	if _, ok := planLimits[p]; ok {
		return p
	}
	return PlanFree
}

// LimitFor returns the upload limit per window for plan.
func LimitFor(plan string) int {
	return planLimits[NormalizePlan(plan)]
}

func newUsage(plan string, now time.Time) Usage {
	plan = NormalizePlan(plan)
	return Usage{
		Plan:     plan,
		Limit:    LimitFor(plan),
		ResetsAt: now.Add(window),
	}
}

// rollover starts a new window when the current one has ended.
func rollover(u Usage, now time.Time) (Usage, bool) {
	if now.Before(u.ResetsAt) {
		return u, false
	}
	u.Used = 0
	u.ResetsAt = now.Add(window)
	return u, true
}
