package scheduling

import (
	"fmt"
	"sort"
)

// Scheduler compares the appointments a requirement needs with the ones
// already booked. It has no clock and no I/O, so the same Request always
// yields the same Outcome.
type Scheduler struct {
	matcher Matcher
}

// NewScheduler returns a Scheduler using m, or SlotMatcher when m is nil.
func NewScheduler(m Matcher) *Scheduler {
	if m == nil {
		m = SlotMatcher{}
	}
	return &Scheduler{matcher: m}
}

func (s *Scheduler) Schedule(req Request) Outcome {
	if req.requirement.IsSatisfied() {
		return RequirementAlreadySatisfied{}
	}

	required := req.RequiredAppointments()
	sort.SliceStable(required, func(i, j int) bool {
		return requiredLess(required[i], required[j])
	})

	existing := req.ExistingAppointments()
	sort.SliceStable(existing, func(i, j int) bool {
		return existingLess(existing[i], existing[j])
	})

	// matched[i] is the index into existing paired with required[i], or -1.
	matched := make([]int, len(required))
	used := make([]bool, len(existing))
	covered := true

	for i, r := range required {
		matched[i] = -1
		for j, e := range existing {
			if used[j] || !s.matcher.Matches(e, r) {
				continue
			}
			used[j] = true
			matched[i] = j
			break
		}
		if matched[i] < 0 {
			covered = false
		}
	}

	if covered {
		return ExistingAppointmentsSufficient{}
	}

	plan := make(Plan, 0, len(required))
	for i, r := range required {
		if matched[i] < 0 {
			plan = append(plan, CreateAppointment{Required: r})
			continue
		}
		plan = append(plan, RetainAppointment{
			Existing: existing[matched[i]],
			Notes:    retainNotes(r),
		})
	}

	sort.SliceStable(plan, func(i, j int) bool {
		return actionLess(plan[i], plan[j])
	})

	return ExistingAppointmentsInsufficient{Plan: plan}
}

func retainNotes(r RequiredAppointment) string {
	return fmt.Sprintf("matches required slot on %s %s-%s",
		r.StartTime.Format("2006-01-02"),
		r.StartTime.Format("15:04"),
		r.EndTime.Format("15:04"),
	)
}

func requiredLess(a, b RequiredAppointment) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	if !a.EndTime.Equal(b.EndTime) {
		return a.EndTime.Before(b.EndTime)
	}
	return a.ProjectCode < b.ProjectCode
}

func existingLess(a, b ExistingAppointment) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	if !a.EndTime.Equal(b.EndTime) {
		return a.EndTime.Before(b.EndTime)
	}
	if a.ProjectCode != b.ProjectCode {
		return a.ProjectCode < b.ProjectCode
	}
	return a.ID < b.ID
}

type actionKey struct {
	start, end  int64
	projectCode string
	kind        int
	id          int64
}

func keyOf(a Action) actionKey {
	switch a := a.(type) {
	case CreateAppointment:
		return actionKey{
			start:       a.Required.StartTime.UnixNano(),
			end:         a.Required.EndTime.UnixNano(),
			projectCode: a.Required.ProjectCode,
		}
	case RetainAppointment:
		return actionKey{
			start:       a.Existing.StartTime.UnixNano(),
			end:         a.Existing.EndTime.UnixNano(),
			projectCode: a.Existing.ProjectCode,
			kind:        1,
			id:          a.Existing.ID,
		}
	}
	panic(fmt.Sprintf("scheduling: unknown action %T", a))
}

func actionLess(a, b Action) bool {
	ka, kb := keyOf(a), keyOf(b)
	switch {
	case ka.start != kb.start:
		return ka.start < kb.start
	case ka.end != kb.end:
		return ka.end < kb.end
	case ka.projectCode != kb.projectCode:
		return ka.projectCode < kb.projectCode
	case ka.kind != kb.kind:
		return ka.kind < kb.kind
	default:
		return ka.id < kb.id
	}
}
