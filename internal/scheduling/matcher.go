package scheduling

// Matcher decides whether an existing appointment fills a required slot.
// Implementations must be pure.
type Matcher interface {
	Matches(existing ExistingAppointment, required RequiredAppointment) bool
}

type MatcherFunc func(existing ExistingAppointment, required RequiredAppointment) bool

func (f MatcherFunc) Matches(existing ExistingAppointment, required RequiredAppointment) bool {
	return f(existing, required)
}

// SlotMatcher requires the same time window on the same project.
type SlotMatcher struct{}

func (SlotMatcher) Matches(existing ExistingAppointment, required RequiredAppointment) bool {
	return existing.ProjectCode == required.ProjectCode &&
		existing.StartTime.Equal(required.StartTime) &&
		existing.EndTime.Equal(required.EndTime)
}

// TimeWindowMatcher only looks at the time window.
type TimeWindowMatcher struct{}

func (TimeWindowMatcher) Matches(existing ExistingAppointment, required RequiredAppointment) bool {
	return existing.StartTime.Equal(required.StartTime) &&
		existing.EndTime.Equal(required.EndTime)
}
