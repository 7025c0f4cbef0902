package domain

// SubscriptionState is the result of folding an ordered sequence of
// SubscriptionEvents: who currently follows what. It maintains the symmetry
// invariant after every fold step: a metric is in a user's set exactly when
// the user is in the metric's set.
//
// First-seen order of users and metrics is preserved so that report ties can
// be broken deterministically by input order.
type SubscriptionState struct {
	userMetrics     map[string]map[string]struct{}
	metricFollowers map[string]map[string]struct{}
	userOrder       []string
	metricOrder     []string
}

// NewSubscriptionState returns an empty state.
func NewSubscriptionState() *SubscriptionState {
	return &SubscriptionState{
		userMetrics:     make(map[string]map[string]struct{}),
		metricFollowers: make(map[string]map[string]struct{}),
	}
}

// Apply folds a single event into the state. Applying a FOLLOW twice for the
// same (user, metric) pair is idempotent; an UNFOLLOW for a pair not in the
// state is a no-op. Events with an unknown operation are ignored.
func (s *SubscriptionState) Apply(ev SubscriptionEvent) {
	if ev.ActorUserID == "" || ev.MetricID == "" {
		return
	}

	switch ev.Operation {
	case OperationFollow:
		if _, ok := s.userMetrics[ev.ActorUserID]; !ok {
			s.userMetrics[ev.ActorUserID] = make(map[string]struct{})
			s.userOrder = append(s.userOrder, ev.ActorUserID)
		}
		if _, ok := s.metricFollowers[ev.MetricID]; !ok {
			s.metricFollowers[ev.MetricID] = make(map[string]struct{})
			s.metricOrder = append(s.metricOrder, ev.MetricID)
		}
		s.userMetrics[ev.ActorUserID][ev.MetricID] = struct{}{}
		s.metricFollowers[ev.MetricID][ev.ActorUserID] = struct{}{}

	case OperationUnfollow:
		if metrics, ok := s.userMetrics[ev.ActorUserID]; ok {
			delete(metrics, ev.MetricID)
		}
		if users, ok := s.metricFollowers[ev.MetricID]; ok {
			delete(users, ev.ActorUserID)
		}
	}
}

// Users returns the IDs of users currently following at least one metric, in
// first-seen order.
func (s *SubscriptionState) Users() []string {
	var users []string
	for _, u := range s.userOrder {
		if len(s.userMetrics[u]) > 0 {
			users = append(users, u)
		}
	}
	return users
}

// Metrics returns the IDs of metrics currently followed by at least one user,
// in first-seen order.
func (s *SubscriptionState) Metrics() []string {
	var metrics []string
	for _, m := range s.metricOrder {
		if len(s.metricFollowers[m]) > 0 {
			metrics = append(metrics, m)
		}
	}
	return metrics
}

// FollowingCount returns the number of metrics the user currently follows.
func (s *SubscriptionState) FollowingCount(userID string) int {
	return len(s.userMetrics[userID])
}

// FollowerCount returns the number of users currently following the metric.
func (s *SubscriptionState) FollowerCount(metricID string) int {
	return len(s.metricFollowers[metricID])
}

// Follows reports whether the user currently follows the metric.
func (s *SubscriptionState) Follows(userID, metricID string) bool {
	_, ok := s.userMetrics[userID][metricID]
	return ok
}

// Symmetric verifies the symmetry invariant over the whole state. It exists
// for tests and costs O(pairs).
func (s *SubscriptionState) Symmetric() bool {
	for u, metrics := range s.userMetrics {
		for m := range metrics {
			if _, ok := s.metricFollowers[m][u]; !ok {
				return false
			}
		}
	}
	for m, users := range s.metricFollowers {
		for u := range users {
			if _, ok := s.userMetrics[u][m]; !ok {
				return false
			}
		}
	}
	return true
}
