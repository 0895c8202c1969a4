//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-platform/internal/domain"
	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/adapter"
	"course-platform/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// MockTxManager runs the callback without a real transaction.
type MockTxManager struct{}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// --- Orders ---

type MockOrderRepo struct {
	mu     sync.RWMutex
	orders map[string]*model.Order

	SaveFunc func(ctx context.Context, tx repository.Tx, o *model.Order) error
}

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{orders: make(map[string]*model.Order)}
}

func (m *MockOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	cp.Items = append([]model.OrderItem(nil), o.Items...)
	m.orders[o.ID] = &cp
	return nil
}

func (m *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	cp.Items = append([]model.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (m *MockOrderRepo) FindPendingByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.UserID == userID && o.Status == model.OrderStatusPending {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	return nil
}

func (m *MockOrderRepo) SetExternalRef(ctx context.Context, tx repository.Tx, id, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.ExternalRef = ref
	return nil
}

func (m *MockOrderRepo) HasCompletedForCourse(ctx context.Context, tx repository.Tx, userID, courseID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.UserID != userID || o.Status != model.OrderStatusCompleted {
			continue
		}
		for _, it := range o.Items {
			if it.CourseID == courseID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *MockOrderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockOrderRepo) SumCompletedSince(ctx context.Context, tx repository.Tx, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, o := range m.orders {
		if o.Status == model.OrderStatusCompleted && o.CreatedAt.After(since) {
			sum += o.Total
		}
	}
	return sum, nil
}

// --- Subscriptions ---

type MockSubscriptionRepo struct {
	mu   sync.RWMutex
	subs map[string]*model.Subscription // by user id

	SaveFunc              func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	FindByUserFunc        func(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error)
	FindByExternalRefFunc func(ctx context.Context, tx repository.Tx, ref string) (*model.Subscription, error)
}

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{subs: make(map[string]*model.Subscription)}
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs[s.UserID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	if m.FindByUserFunc != nil {
		return m.FindByUserFunc(ctx, tx, userID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) FindByExternalRef(ctx context.Context, tx repository.Tx, ref string) (*model.Subscription, error) {
	if m.FindByExternalRefFunc != nil {
		return m.FindByExternalRefFunc(ctx, tx, ref)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs {
		if s.ExternalRef == ref {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindOverdue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.StalePastPeriodEnd(now) {
			cp := *s
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) FindExpiring(ctx context.Context, tx repository.Tx, within time.Duration) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cut := time.Now().Add(within)
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.CurrentlyGrants(time.Now()) && s.PeriodEnd.Before(cut) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) CountActiveByPlan(ctx context.Context, tx repository.Tx) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int)
	for _, s := range m.subs {
		if s.Status == model.SubscriptionStatusActive {
			out[s.PlanID]++
		}
	}
	return out, nil
}

// --- Plans ---

type MockPlanRepo struct {
	mu    sync.RWMutex
	plans map[string]*model.SubscriptionPlan
}

func NewMockPlanRepo() *MockPlanRepo {
	return &MockPlanRepo{plans: make(map[string]*model.SubscriptionPlan)}
}

func (m *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *MockPlanRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.plans, id)
	return nil
}

func (m *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubscriptionPlan
	for _, p := range m.plans {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// --- Enrollments ---

type MockEnrollmentRepo struct {
	mu   sync.RWMutex
	rows map[string]*model.Enrollment // key user|course
}

func NewMockEnrollmentRepo() *MockEnrollmentRepo {
	return &MockEnrollmentRepo{rows: make(map[string]*model.Enrollment)}
}

func enrollKey(userID, courseID string) string { return userID + "|" + courseID }

func (m *MockEnrollmentRepo) Upsert(ctx context.Context, tx repository.Tx, userID, courseID string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	key := enrollKey(userID, courseID)
	var exp *time.Time
	if expiresAt != nil {
		cp := *expiresAt
		exp = &cp
	}
	if e, ok := m.rows[key]; ok {
		e.ExpiresAt = exp
		e.UpdatedAt = now
		return nil
	}
	m.rows[key] = &model.Enrollment{UserID: userID, CourseID: courseID, ExpiresAt: exp, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (m *MockEnrollmentRepo) Find(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rows[enrollKey(userID, courseID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockEnrollmentRepo) Delete(ctx context.Context, tx repository.Tx, userID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, enrollKey(userID, courseID))
	return nil
}

func (m *MockEnrollmentRepo) ListGranting(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Enrollment
	for _, e := range m.rows {
		if e.UserID == userID && e.Grants(now) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockEnrollmentRepo) CountGranting(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.rows {
		if e.Grants(now) {
			n++
		}
	}
	return n, nil
}

// Len reports the total number of enrollment rows, expired ones included.
func (m *MockEnrollmentRepo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// --- Webhook events ---

type MockWebhookEventRepo struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMockWebhookEventRepo() *MockWebhookEventRepo {
	return &MockWebhookEventRepo{seen: make(map[string]bool)}
}

func (m *MockWebhookEventRepo) Insert(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ev.Provider + "|" + ev.ExternalID + "|" + ev.RawStatus
	if m.seen[key] {
		return domain.ErrDuplicateEvent
	}
	m.seen[key] = true
	return nil
}

// --- Courses ---

type MockCourseRepo struct {
	mu      sync.RWMutex
	courses map[string]*model.Course
	lessons map[string]*model.Lesson
}

func NewMockCourseRepo() *MockCourseRepo {
	return &MockCourseRepo{courses: make(map[string]*model.Course), lessons: make(map[string]*model.Lesson)}
}

func (m *MockCourseRepo) Save(ctx context.Context, tx repository.Tx, c *model.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.courses[c.ID] = &cp
	return nil
}

func (m *MockCourseRepo) AddLesson(l *model.Lesson) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.lessons[l.ID] = &cp
}

func (m *MockCourseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockCourseRepo) ListByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Course
	for _, id := range ids {
		if c, ok := m.courses[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockCourseRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Course
	for _, c := range m.courses {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockCourseRepo) FindLesson(ctx context.Context, tx repository.Tx, lessonID string) (*model.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lessons[lessonID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// --- Notifier ---

type MockNotifier struct {
	mu          sync.Mutex
	Purchases   int
	Activations int
	Reminders   int
}

func NewMockNotifier() *MockNotifier { return &MockNotifier{} }

func (m *MockNotifier) PurchaseCompleted(ctx context.Context, userID, orderID string, courseIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Purchases++
	return nil
}

func (m *MockNotifier) SubscriptionActivated(ctx context.Context, userID, planID string, periodEnd time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Activations++
	return nil
}

func (m *MockNotifier) SubscriptionExpiring(ctx context.Context, userID string, periodEnd time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reminders++
	return nil
}

// --- Gateways ---

type MockCheckoutGateway struct {
	CreateCheckoutFunc func(ctx context.Context, o *model.Order) (string, string, error)
	FetchPaymentFunc   func(ctx context.Context, externalID string) (*adapter.PaymentDetail, error)
}

func (m *MockCheckoutGateway) Name() string { return "mock-checkout" }

func (m *MockCheckoutGateway) CreateCheckout(ctx context.Context, o *model.Order) (string, string, error) {
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, o)
	}
	return "pref-" + o.ID, "https://pay.example/" + o.ID, nil
}

func (m *MockCheckoutGateway) FetchPayment(ctx context.Context, externalID string) (*adapter.PaymentDetail, error) {
	if m.FetchPaymentFunc != nil {
		return m.FetchPaymentFunc(ctx, externalID)
	}
	return nil, domain.ErrNotFound
}

type MockRecurringGateway struct {
	CreatePreapprovalFunc func(ctx context.Context, userID string, plan *model.SubscriptionPlan, d model.PlanDuration) (string, string, error)
	CancelPreapprovalFunc func(ctx context.Context, externalRef string) error
	Cancelled             []string
}

func (m *MockRecurringGateway) Name() string { return "mock-recurring" }

func (m *MockRecurringGateway) CreatePreapproval(ctx context.Context, userID string, plan *model.SubscriptionPlan, d model.PlanDuration) (string, string, error) {
	if m.CreatePreapprovalFunc != nil {
		return m.CreatePreapprovalFunc(ctx, userID, plan, d)
	}
	return "pre-" + userID, "https://subscribe.example/" + userID, nil
}

func (m *MockRecurringGateway) FetchPreapproval(ctx context.Context, externalID string) (*adapter.PreapprovalDetail, error) {
	return nil, domain.ErrNotFound
}

func (m *MockRecurringGateway) CancelPreapproval(ctx context.Context, externalRef string) error {
	if m.CancelPreapprovalFunc != nil {
		return m.CancelPreapprovalFunc(ctx, externalRef)
	}
	m.Cancelled = append(m.Cancelled, externalRef)
	return nil
}
