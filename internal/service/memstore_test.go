package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/repository"
)

// testClock is a controllable time source shared by a test's services.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// recordingDispatcher captures published events for assertions.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) Events() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.Event{}, d.events...)
}

func (d *recordingDispatcher) EventsOfType(t events.EventType) []events.Event {
	var out []events.Event
	for _, e := range d.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// memStore is an in-memory stand-in for the postgres repositories, good
// enough for service-level behavior tests.
type memStore struct {
	mu    sync.Mutex
	clock *testClock

	tickets     map[string]*domain.Ticket
	activities  []domain.TicketActivity
	replies     []domain.Reply
	tags        map[string]domain.Tag
	departments map[string]domain.Department
	agents      map[string]domain.Agent
	users       map[string]domain.User
	rules       map[string]*domain.EscalationRule
	policies    map[string]*domain.SlaPolicy
	followers   map[string]map[string]bool
}

func newMemStore(clock *testClock) *memStore {
	return &memStore{
		clock:       clock,
		tickets:     make(map[string]*domain.Ticket),
		tags:        make(map[string]domain.Tag),
		departments: make(map[string]domain.Department),
		agents:      make(map[string]domain.Agent),
		users:       make(map[string]domain.User),
		rules:       make(map[string]*domain.EscalationRule),
		policies:    make(map[string]*domain.SlaPolicy),
		followers:   make(map[string]map[string]bool),
	}
}

func (s *memStore) repos() repository.Repositories {
	return repository.Repositories{
		Tickets:     &memTicketRepo{s},
		Activities:  &memActivityRepo{s},
		Replies:     &memReplyRepo{s},
		Tags:        &memTagRepo{s},
		Departments: &memDepartmentRepo{s},
		Agents:      &memAgentRepo{s},
		Users:       &memUserRepo{s},
		Rules:       &memRuleRepo{s},
		Policies:    &memPolicyRepo{s},
		Followers:   &memFollowerRepo{s},
	}
}

// memTx runs the unit callback against the same store. Rollback is not
// simulated; tests exercising failure atomicity assert on observable state
// before the failing step instead.
type memTx struct {
	store *memStore
}

func (m *memTx) WithinTx(_ context.Context, fn func(r repository.Repositories) error) error {
	return fn(m.store.repos())
}

func (s *memStore) addAgent(agent domain.Agent) domain.Agent {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	agent.Active = true
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.ID] = agent
	return agent
}

func (s *memStore) addDepartment(dept domain.Department) domain.Department {
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[dept.ID] = dept
	return dept
}

func (s *memStore) addPolicy(policy domain.SlaPolicy) domain.SlaPolicy {
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := policy
	s.policies[policy.ID] = &copied
	return policy
}

func (s *memStore) addRule(rule domain.EscalationRule) domain.EscalationRule {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = s.clock.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := rule
	s.rules[rule.ID] = &copied
	return rule
}

func (s *memStore) ticketByID(id string) *domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tickets[id]; ok {
		copied := *t
		return &copied
	}
	return nil
}

func (s *memStore) activitiesFor(id string, action domain.ActivityAction) []domain.TicketActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TicketActivity
	for _, a := range s.activities {
		if a.TicketID == id && a.Action == action {
			out = append(out, a)
		}
	}
	return out
}

type memTicketRepo struct{ s *memStore }

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = r.s.clock.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	copied := *ticket
	r.s.tickets[ticket.ID] = &copied
	return nil
}

func (r *memTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = r.s.clock.Now()
	copied := *ticket
	r.s.tickets[ticket.ID] = &copied
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	if t := r.s.ticketByID(id); t != nil {
		return t, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memTicketRepo) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *memTicketRepo) GetByReference(_ context.Context, reference string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tickets {
		if t.Reference == reference {
			copied := *t
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memTicketRepo) all() []domain.Ticket {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Ticket, 0, len(r.s.tickets))
	for _, t := range r.s.tickets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range r.all() {
		if filter.RequesterID != nil && (t.RequesterID == nil || *t.RequesterID != *filter.RequesterID) {
			continue
		}
		if filter.DepartmentID != nil && (t.DepartmentID == nil || *t.DepartmentID != *filter.DepartmentID) {
			continue
		}
		if filter.AssigneeID != nil && (t.AssignedTo == nil || *t.AssignedTo != *filter.AssigneeID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, t.Priority) {
			continue
		}
		if filter.SlaBreached != nil && t.SlaBreached != *filter.SlaBreached {
			continue
		}
		if filter.SearchTerm != nil && !strings.Contains(strings.ToLower(t.Subject), strings.ToLower(*filter.SearchTerm)) {
			continue
		}
		out = append(out, t)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memTicketRepo) ListOpen(_ context.Context) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range r.all() {
		if t.Open() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTicketRepo) ListFirstResponseBreaches(_ context.Context, now time.Time) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range r.all() {
		if t.Open() && !t.SlaBreached && t.FirstResponseBreached(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTicketRepo) ListResolutionBreaches(_ context.Context, now time.Time) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range r.all() {
		if t.Open() && !t.SlaBreached && t.ResolutionBreached(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTicketRepo) ListFirstResponseWarnings(_ context.Context, now time.Time, window time.Duration) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range r.all() {
		if t.Open() && t.FirstResponseWarning(now, window) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTicketRepo) ListResolutionWarnings(_ context.Context, now time.Time, window time.Duration) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range r.all() {
		if t.Open() && t.ResolutionWarning(now, window) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTicketRepo) ListResolvedBefore(_ context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range r.all() {
		if t.Status == domain.TicketStatusResolved && t.ResolvedAt != nil && t.ResolvedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTicketRepo) SlaCounts(_ context.Context) (repository.SlaCounts, error) {
	var counts repository.SlaCounts
	for _, t := range r.all() {
		if t.SlaPolicyID == nil {
			continue
		}
		counts.TotalWithSla++
		if t.SlaBreached {
			counts.TotalBreached++
		}
		if t.FirstResponseAt != nil {
			counts.Responded++
			if t.SlaFirstResponseDueAt == nil || !t.FirstResponseAt.After(*t.SlaFirstResponseDueAt) {
				counts.RespondedOnTime++
			}
		}
		if t.ResolvedAt != nil {
			counts.Resolved++
			if t.SlaResolutionDueAt == nil || !t.ResolvedAt.After(*t.SlaResolutionDueAt) {
				counts.ResolvedOnTime++
			}
		}
	}
	return counts, nil
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

type memActivityRepo struct{ s *memStore }

func (r *memActivityRepo) Append(_ context.Context, activity *domain.TicketActivity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	activity.ID = uuid.NewString()
	activity.CreatedAt = r.s.clock.Now()
	r.s.activities = append(r.s.activities, *activity)
	return nil
}

func (r *memActivityRepo) ListByTicket(_ context.Context, ticketID string, limit, offset int) ([]domain.TicketActivity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.TicketActivity
	for i := len(r.s.activities) - 1; i >= 0; i-- {
		if r.s.activities[i].TicketID == ticketID {
			out = append(out, r.s.activities[i])
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memActivityRepo) CountByAction(_ context.Context, ticketID string, action domain.ActivityAction) (int64, error) {
	return int64(len(r.s.activitiesFor(ticketID, action))), nil
}

type memReplyRepo struct{ s *memStore }

func (r *memReplyRepo) Create(_ context.Context, reply *domain.Reply) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reply.ID = uuid.NewString()
	reply.CreatedAt = r.s.clock.Now()
	r.s.replies = append(r.s.replies, *reply)
	return nil
}

func (r *memReplyRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Reply, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Reply
	for _, reply := range r.s.replies {
		if reply.TicketID == ticketID {
			out = append(out, reply)
		}
	}
	return out, nil
}

func (r *memReplyRepo) LatestPublicReplyAt(_ context.Context, ticketID string) (*time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *time.Time
	for _, reply := range r.s.replies {
		if reply.TicketID != ticketID || reply.IsInternal {
			continue
		}
		t := reply.CreatedAt
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}
	return latest, nil
}

type memTagRepo struct{ s *memStore }

func (r *memTagRepo) FindOrCreateByName(_ context.Context, name string) (*domain.Tag, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if tag, ok := r.s.tags[name]; ok {
		return &tag, nil
	}
	tag := domain.Tag{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		CreatedAt: r.s.clock.Now(),
	}
	r.s.tags[name] = tag
	return &tag, nil
}

func (r *memTagRepo) List(_ context.Context) ([]domain.Tag, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Tag, 0, len(r.s.tags))
	for _, tag := range r.s.tags {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memDepartmentRepo struct{ s *memStore }

func (r *memDepartmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if dept, ok := r.s.departments[id]; ok {
		return &dept, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memDepartmentRepo) List(_ context.Context) ([]domain.Department, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Department, 0, len(r.s.departments))
	for _, dept := range r.s.departments {
		out = append(out, dept)
	}
	return out, nil
}

type memAgentRepo struct{ s *memStore }

func (r *memAgentRepo) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if agent, ok := r.s.agents[id]; ok {
		return &agent, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memAgentRepo) GetByEmail(_ context.Context, email string) (*domain.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, agent := range r.s.agents {
		if strings.EqualFold(agent.Email, email) {
			return &agent, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memUserRepo struct{ s *memStore }

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.ID = uuid.NewString()
	user.CreatedAt = r.s.clock.Now()
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if user, ok := r.s.users[id]; ok {
		return &user, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, user := range r.s.users {
		if strings.EqualFold(user.Email, email) {
			return &user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memRuleRepo struct{ s *memStore }

func (r *memRuleRepo) Create(_ context.Context, rule *domain.EscalationRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule.ID = uuid.NewString()
	rule.CreatedAt = r.s.clock.Now()
	rule.UpdatedAt = rule.CreatedAt
	copied := *rule
	r.s.rules[rule.ID] = &copied
	return nil
}

func (r *memRuleRepo) Update(_ context.Context, rule *domain.EscalationRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rules[rule.ID]; !ok {
		return pgx.ErrNoRows
	}
	rule.UpdatedAt = r.s.clock.Now()
	copied := *rule
	r.s.rules[rule.ID] = &copied
	return nil
}

func (r *memRuleRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rules[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.s.rules, id)
	return nil
}

func (r *memRuleRepo) GetByID(_ context.Context, id string) (*domain.EscalationRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rule, ok := r.s.rules[id]; ok {
		copied := *rule
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memRuleRepo) sorted() []domain.EscalationRule {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.EscalationRule, 0, len(r.s.rules))
	for _, rule := range r.s.rules {
		out = append(out, *rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority == out[j].Priority {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

func (r *memRuleRepo) List(_ context.Context) ([]domain.EscalationRule, error) {
	return r.sorted(), nil
}

func (r *memRuleRepo) ListActiveOrdered(_ context.Context) ([]domain.EscalationRule, error) {
	var out []domain.EscalationRule
	for _, rule := range r.sorted() {
		if rule.IsActive {
			out = append(out, rule)
		}
	}
	return out, nil
}

type memPolicyRepo struct{ s *memStore }

func (r *memPolicyRepo) Create(_ context.Context, policy *domain.SlaPolicy) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	policy.ID = uuid.NewString()
	policy.CreatedAt = r.s.clock.Now()
	policy.UpdatedAt = policy.CreatedAt
	copied := *policy
	r.s.policies[policy.ID] = &copied
	return nil
}

func (r *memPolicyRepo) Update(_ context.Context, policy *domain.SlaPolicy) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.policies[policy.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *policy
	r.s.policies[policy.ID] = &copied
	return nil
}

func (r *memPolicyRepo) GetByID(_ context.Context, id string) (*domain.SlaPolicy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if policy, ok := r.s.policies[id]; ok {
		copied := *policy
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memPolicyRepo) GetDefault(_ context.Context) (*domain.SlaPolicy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, policy := range r.s.policies {
		if policy.IsDefault && policy.IsActive {
			copied := *policy
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memPolicyRepo) List(_ context.Context) ([]domain.SlaPolicy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.SlaPolicy, 0, len(r.s.policies))
	for _, policy := range r.s.policies {
		out = append(out, *policy)
	}
	return out, nil
}

type memFollowerRepo struct{ s *memStore }

func (r *memFollowerRepo) Follow(_ context.Context, ticketID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.followers[ticketID] == nil {
		r.s.followers[ticketID] = make(map[string]bool)
	}
	r.s.followers[ticketID][userID] = true
	return nil
}

func (r *memFollowerRepo) Unfollow(_ context.Context, ticketID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.followers[ticketID], userID)
	return nil
}

func (r *memFollowerRepo) ListFollowerIDs(_ context.Context, ticketID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]string, 0, len(r.s.followers[ticketID]))
	for id := range r.s.followers[ticketID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
