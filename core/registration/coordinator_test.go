package registration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/school"
	"github.com/vladapp/backend/core/user"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeGateway struct {
	mu        sync.Mutex
	subs      map[string]uuid.UUID // subscription id -> registration id
	lastID    uuid.UUID
	amount    int64
	err       error
	lookupErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{subs: make(map[string]uuid.UUID)}
}

func (gw *fakeGateway) StartSubscription(ctx context.Context, sub NewSubscription) (Subscription, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.err != nil {
		return Subscription{}, gw.err
	}
	gw.lastID = sub.RegistrationID
	gw.amount = sub.AmountCents
	subID := "sub_" + sub.RegistrationID.String()[:8]
	gw.subs[subID] = sub.RegistrationID
	return Subscription{CustomerID: "cus_test", SubscriptionID: subID}, nil
}

func (gw *fakeGateway) GetRegistrationID(ctx context.Context, subscriptionID string) (uuid.UUID, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.lookupErr != nil {
		return uuid.Nil, gw.lookupErr
	}
	id, ok := gw.subs[subscriptionID]
	if !ok {
		return uuid.Nil, ErrUnknownRegistration
	}
	return id, nil
}

func (gw *fakeGateway) subID() string {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	for subID := range gw.subs {
		return subID
	}
	return ""
}

type fakeRegistrar struct {
	mu       sync.Mutex
	calls    int
	failOnce bool
	err      error
}

func (r *fakeRegistrar) register(recs []user.Record, prefix string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.calls++
	ids := make([]string, len(recs))
	for i, rec := range recs {
		if r.failOnce && i == 0 {
			continue // positional contract: empty id marks the failed record
		}
		ids[i] = prefix + rec.Email
	}
	return ids, nil
}

func (r *fakeRegistrar) RegisterStudents(ctx context.Context, recs []user.Record) ([]string, error) {
	return r.register(recs, "stu-")
}

func (r *fakeRegistrar) RegisterTeachers(ctx context.Context, recs []user.Record) ([]string, error) {
	return r.register(recs, "tea-")
}

type fakeSchools struct {
	mu      sync.Mutex
	created []school.School
	err     error
}

func (s *fakeSchools) Create(ctx context.Context, sch school.School) (school.School, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return school.School{}, s.err
	}
	sch.ID = "school-1"
	s.created = append(s.created, sch)
	return sch, nil
}

type fakeSiret struct{ err error }

func (fs fakeSiret) Check(context.Context, string) error { return fs.err }

func testConfig(timeout time.Duration) *core.Config {
	conf := &core.Config{}
	conf.Registration.PaymentTimeout = timeout
	return conf
}

func newRegistrationPayload() NewRegistration {
	return NewRegistration{
		Name:            "Lycée Test",
		Email:           "dir@test.fr",
		Siret:           "12345678901234",
		PaymentMethodID: "pm_test",
		ManagedBy:       []int{0},
		Teachers: []user.Record{
			{FirstName: "marie", LastName: "dupont", Email: "md@test.fr", Password: "pwd"},
		},
		Students: []user.Record{
			{FirstName: "jane", LastName: "doe", Email: "jd@test.fr", Password: "pwd", Group: "6A"},
			{FirstName: "john", LastName: "smith", Email: "js@test.fr", Password: "pwd", Group: "6B"},
			{FirstName: "jim", LastName: "beam", Email: "jb@test.fr", Password: "pwd", Group: "6A"},
		},
	}
}

func TestCoordinator_successfulPayment(t *testing.T) {
	gw := newFakeGateway()
	reg := &fakeRegistrar{}
	schools := &fakeSchools{}
	c := NewCoordinator(gw, reg, schools, fakeSiret{}, nopLogger{}, testConfig(time.Minute))
	ctx := context.Background()

	id, err := c.Begin(ctx, newRegistrationPayload())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if c.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", c.PendingCount())
	}
	// 3 students, 1 teacher: base covers the first of each
	if gw.amount != 2000 {
		t.Errorf("subscription amount = %d, want 2000", gw.amount)
	}

	done := make(chan Outcome, 1)
	go func() {
		out, err := c.AwaitOutcome(ctx, id)
		if err != nil {
			t.Errorf("AwaitOutcome() error = %v", err)
		}
		done <- out
	}()

	if err := c.HandleEvent(ctx, Event{Type: EventPaymentSucceeded, SubscriptionID: gw.subID()}); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	out := <-done
	if out.Status != OutcomeSucceeded {
		t.Fatalf("outcome = %+v, want succeeded", out)
	}
	if out.SchoolID != "school-1" {
		t.Errorf("schoolID = %q", out.SchoolID)
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after resolution", c.PendingCount())
	}

	if len(schools.created) != 1 {
		t.Fatalf("created schools = %d, want 1", len(schools.created))
	}
	sch := schools.created[0]
	if len(sch.Students) != 3 || len(sch.Teachers) != 1 {
		t.Errorf("school members = %d students, %d teachers; want 3, 1", len(sch.Students), len(sch.Teachers))
	}
	if len(sch.Groups) != 2 {
		t.Errorf("school groups = %v, want deduplicated 6A, 6B", sch.Groups)
	}
	if len(sch.ManagedBy) != 1 || sch.ManagedBy[0] != "tea-md@test.fr" {
		t.Errorf("managedBy = %v", sch.ManagedBy)
	}
	if sch.StripeCustomerID != "cus_test" {
		t.Errorf("stripeCustomerID = %q", sch.StripeCustomerID)
	}
}

func TestCoordinator_duplicateWebhookIsNoop(t *testing.T) {
	gw := newFakeGateway()
	schools := &fakeSchools{}
	c := NewCoordinator(gw, &fakeRegistrar{}, schools, fakeSiret{}, nopLogger{}, testConfig(time.Minute))
	ctx := context.Background()

	id, err := c.Begin(ctx, newRegistrationPayload())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	go func() { _, _ = c.AwaitOutcome(ctx, id) }()

	ev := Event{Type: EventPaymentSucceeded, SubscriptionID: gw.subID()}
	if err := c.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if err := c.HandleEvent(ctx, ev); errors.Cause(err) != ErrUnknownRegistration {
		t.Errorf("duplicate HandleEvent() error = %v, want ErrUnknownRegistration", err)
	}
	if len(schools.created) != 1 {
		t.Errorf("created schools = %d, want exactly 1", len(schools.created))
	}
}

func TestCoordinator_paymentFailed(t *testing.T) {
	gw := newFakeGateway()
	schools := &fakeSchools{}
	c := NewCoordinator(gw, &fakeRegistrar{}, schools, fakeSiret{}, nopLogger{}, testConfig(time.Minute))
	ctx := context.Background()

	id, err := c.Begin(ctx, newRegistrationPayload())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	done := make(chan Outcome, 1)
	go func() {
		out, _ := c.AwaitOutcome(ctx, id)
		done <- out
	}()

	if err := c.HandleEvent(ctx, Event{Type: EventPaymentFailed, SubscriptionID: gw.subID()}); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	out := <-done
	if out.Status != OutcomeFailed {
		t.Errorf("outcome = %+v, want failed", out)
	}
	if len(schools.created) != 0 {
		t.Error("no school must be created on a failed payment")
	}
}

func TestCoordinator_timeout(t *testing.T) {
	gw := newFakeGateway()
	c := NewCoordinator(gw, &fakeRegistrar{}, &fakeSchools{}, fakeSiret{}, nopLogger{}, testConfig(20*time.Millisecond))
	ctx := context.Background()

	id, err := c.Begin(ctx, newRegistrationPayload())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	out, err := c.AwaitOutcome(ctx, id)
	if err != nil {
		t.Fatalf("AwaitOutcome() error = %v", err)
	}
	if out.Status != OutcomeTimedOut {
		t.Fatalf("outcome = %+v, want timed_out", out)
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after expiry", c.PendingCount())
	}

	// a late webhook observes not-found and is a no-op
	err = c.HandleEvent(ctx, Event{Type: EventPaymentSucceeded, SubscriptionID: gw.subID()})
	if errors.Cause(err) != ErrUnknownRegistration {
		t.Errorf("late HandleEvent() error = %v, want ErrUnknownRegistration", err)
	}
}

func TestCoordinator_lookupFailureKeepsEntryPending(t *testing.T) {
	gw := newFakeGateway()
	schools := &fakeSchools{}
	c := NewCoordinator(gw, &fakeRegistrar{}, schools, fakeSiret{}, nopLogger{}, testConfig(time.Minute))
	ctx := context.Background()

	id, err := c.Begin(ctx, newRegistrationPayload())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	ev := Event{Type: EventPaymentSucceeded, SubscriptionID: gw.subID()}

	// a transient gateway failure must surface as such for the provider to
	// redeliver; it is not an unknown registration and must not resolve anything
	gw.lookupErr = errors.New("gateway unavailable")
	err = c.HandleEvent(ctx, ev)
	if err == nil {
		t.Fatal("HandleEvent() error = nil, want the lookup failure")
	}
	if errors.Cause(err) == ErrUnknownRegistration {
		t.Fatalf("HandleEvent() error = %v, must not be ErrUnknownRegistration", err)
	}
	if c.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1; the entry must survive the failed delivery", c.PendingCount())
	}

	// redelivery after the gateway recovers finalizes normally
	gw.lookupErr = nil
	if err := c.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("redelivered HandleEvent() error = %v", err)
	}
	out, err := c.AwaitOutcome(ctx, id)
	if err != nil {
		t.Fatalf("AwaitOutcome() error = %v", err)
	}
	if out.Status != OutcomeSucceeded {
		t.Errorf("outcome = %+v, want succeeded", out)
	}
	if len(schools.created) != 1 {
		t.Errorf("created schools = %d, want 1", len(schools.created))
	}
}

func TestCoordinator_webhookBeforeAwait(t *testing.T) {
	gw := newFakeGateway()
	schools := &fakeSchools{}
	c := NewCoordinator(gw, &fakeRegistrar{}, schools, fakeSiret{}, nopLogger{}, testConfig(time.Minute))
	ctx := context.Background()

	id, err := c.Begin(ctx, newRegistrationPayload())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	// webhook lands before anyone awaits; the outcome must be parked
	if err := c.HandleEvent(ctx, Event{Type: EventPaymentSucceeded, SubscriptionID: gw.subID()}); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after resolution", c.PendingCount())
	}

	out, err := c.AwaitOutcome(ctx, id)
	if err != nil {
		t.Fatalf("AwaitOutcome() error = %v, want the parked outcome", err)
	}
	if out.Status != OutcomeSucceeded || out.SchoolID != "school-1" {
		t.Errorf("outcome = %+v, want succeeded school-1", out)
	}
	if len(schools.created) != 1 {
		t.Errorf("created schools = %d, want 1", len(schools.created))
	}
}

func TestCoordinator_ignoresOtherEventTypes(t *testing.T) {
	gw := newFakeGateway()
	c := NewCoordinator(gw, &fakeRegistrar{}, &fakeSchools{}, fakeSiret{}, nopLogger{}, testConfig(time.Minute))
	ctx := context.Background()

	if _, err := c.Begin(ctx, newRegistrationPayload()); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := c.HandleEvent(ctx, Event{Type: "invoice.created", SubscriptionID: gw.subID()}); err != nil {
		t.Errorf("HandleEvent() error = %v, want nil for ignored types", err)
	}
	if c.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1; ignored events must not resolve", c.PendingCount())
	}
}

func TestCoordinator_siretRejected(t *testing.T) {
	gw := newFakeGateway()
	c := NewCoordinator(gw, &fakeRegistrar{}, &fakeSchools{}, fakeSiret{err: errors.New("not a school")}, nopLogger{}, testConfig(time.Minute))

	if _, err := c.Begin(context.Background(), newRegistrationPayload()); err == nil {
		t.Fatal("Begin() must fail when the SIRET check fails")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", c.PendingCount())
	}
	if len(gw.subs) != 0 {
		t.Error("no subscription must be started when the SIRET check fails")
	}
}

func TestCoordinator_gatewayRejected(t *testing.T) {
	gw := newFakeGateway()
	gw.err = errors.New("card declined")
	c := NewCoordinator(gw, &fakeRegistrar{}, &fakeSchools{}, fakeSiret{}, nopLogger{}, testConfig(time.Minute))

	if _, err := c.Begin(context.Background(), newRegistrationPayload()); err == nil {
		t.Fatal("Begin() must fail when the gateway rejects the subscription")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0; nothing may be stored on gateway failure", c.PendingCount())
	}
}

func TestCoordinator_persistenceFailure(t *testing.T) {
	gw := newFakeGateway()
	c := NewCoordinator(gw, &fakeRegistrar{}, &fakeSchools{err: errors.New("db down")}, fakeSiret{}, nopLogger{}, testConfig(time.Minute))
	ctx := context.Background()

	id, err := c.Begin(ctx, newRegistrationPayload())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	done := make(chan Outcome, 1)
	go func() {
		out, _ := c.AwaitOutcome(ctx, id)
		done <- out
	}()

	if err := c.HandleEvent(ctx, Event{Type: EventPaymentSucceeded, SubscriptionID: gw.subID()}); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	out := <-done
	if out.Status != OutcomeFailed {
		t.Errorf("outcome = %+v, want failed on persistence failure", out)
	}
}

func TestCoordinator_partialRegistrationSkipsManagedBy(t *testing.T) {
	gw := newFakeGateway()
	reg := &fakeRegistrar{failOnce: true}
	schools := &fakeSchools{}
	c := NewCoordinator(gw, reg, schools, fakeSiret{}, nopLogger{}, testConfig(time.Minute))
	ctx := context.Background()

	id, err := c.Begin(ctx, newRegistrationPayload())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	done := make(chan Outcome, 1)
	go func() {
		out, _ := c.AwaitOutcome(ctx, id)
		done <- out
	}()

	if err := c.HandleEvent(ctx, Event{Type: EventPaymentSucceeded, SubscriptionID: gw.subID()}); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	out := <-done
	if out.Status != OutcomeSucceeded {
		t.Fatalf("outcome = %+v, want succeeded", out)
	}

	sch := schools.created[0]
	// the first record of each batch failed: 2 of 3 students, 0 of 1 teachers
	if len(sch.Students) != 2 {
		t.Errorf("students = %v, want the 2 surviving ids", sch.Students)
	}
	if len(sch.Teachers) != 0 {
		t.Errorf("teachers = %v, want none", sch.Teachers)
	}
	if len(sch.ManagedBy) != 0 {
		t.Errorf("managedBy = %v; a failed managing teacher must be skipped", sch.ManagedBy)
	}
}

func TestCoordinator_awaitUnknownRegistration(t *testing.T) {
	c := NewCoordinator(newFakeGateway(), &fakeRegistrar{}, &fakeSchools{}, fakeSiret{}, nopLogger{}, testConfig(time.Minute))

	if _, err := c.AwaitOutcome(context.Background(), uuid.New()); err != ErrUnknownRegistration {
		t.Errorf("AwaitOutcome() error = %v, want ErrUnknownRegistration", err)
	}
}
