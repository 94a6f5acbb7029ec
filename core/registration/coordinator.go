package registration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/school"
)

// pendingEntry pairs the stored payload with its one-shot completion signal
// and the discard timer guarding against a webhook that never arrives. A
// resolved entry stays in the map until its outcome is awaited, so a webhook
// landing before AwaitOutcome does not strand the caller.
type pendingEntry struct {
	reg      PendingRegistration
	outcome  chan Outcome // buffered; written exactly once by whoever resolves the entry
	timer    *time.Timer
	resolved bool
}

// Coordinator holds school registrations awaiting payment confirmation, keyed
// by a server-generated correlation id. For a given id at most one of
// {finalize, discard-on-failure, discard-on-timeout} executes: resolution
// claims the entry under the mutex, and the losing path observes "not found"
// and exits silently.
//
// Pending state is process-local and lost on restart; the webhook for such an
// entry is acknowledged as unknown. This matches the availability trade-off of
// the onboarding flow, where the client simply retries the whole registration.
type Coordinator struct {
	gateway   Gateway
	registrar Registrar
	schools   Schools
	siret     SiretChecker
	logger    core.Logger
	timeout   time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingEntry
}

func NewCoordinator(
	gateway Gateway,
	registrar Registrar,
	schools Schools,
	siret SiretChecker,
	logger core.Logger,
	conf *core.Config,
) *Coordinator {
	return &Coordinator{
		gateway:   gateway,
		registrar: registrar,
		schools:   schools,
		siret:     siret,
		logger:    logger,
		timeout:   conf.Registration.PaymentTimeout,
		pending:   make(map[uuid.UUID]*pendingEntry),
	}
}

// Begin validates the SIRET, starts the billing subscription tagged with a
// fresh correlation id and stores the pending payload under that id. Nothing
// is stored when the gateway rejects the subscription, so the whole request
// is safe to retry.
func (c *Coordinator) Begin(ctx context.Context, nr NewRegistration) (uuid.UUID, error) {
	if err := c.siret.Check(ctx, nr.Siret); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	sub, err := c.gateway.StartSubscription(ctx, NewSubscription{
		RegistrationID:  id,
		Name:            nr.Name,
		Email:           nr.Email,
		PaymentMethodID: nr.PaymentMethodID,
		AmountCents:     school.Price(len(nr.Students), len(nr.Teachers)),
		StudentCount:    len(nr.Students),
		TeacherCount:    len(nr.Teachers),
	})
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "starting subscription")
	}

	entry := &pendingEntry{
		reg: PendingRegistration{
			ID:                   id,
			Name:                 nr.Name,
			Email:                nr.Email,
			Siret:                nr.Siret,
			ManagedBy:            nr.ManagedBy,
			Teachers:             nr.Teachers,
			Students:             nr.Students,
			StripeCustomerID:     sub.CustomerID,
			StripeSubscriptionID: sub.SubscriptionID,
			CreatedAt:            time.Now().UTC(),
		},
		outcome: make(chan Outcome, 1),
	}
	entry.timer = time.AfterFunc(c.timeout, func() { c.expire(id) })

	c.mu.Lock()
	c.pending[id] = entry
	c.mu.Unlock()

	return id, nil
}

// AwaitOutcome suspends the caller until the registration is resolved by the
// webhook, discarded by the timeout, or ctx is done. An already-resolved
// entry yields its parked outcome immediately.
func (c *Coordinator) AwaitOutcome(ctx context.Context, id uuid.UUID) (Outcome, error) {
	c.mu.Lock()
	entry, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return Outcome{}, ErrUnknownRegistration
	}

	select {
	case out := <-entry.outcome:
		c.remove(id)
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// HandleEvent processes a provider webhook. A duplicate or stale event
// observes "not found" and is a safe no-op.
func (c *Coordinator) HandleEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
	default:
		c.logger.Debug(fmt.Sprintf("ignoring webhook event type %q", ev.Type))
		return nil
	}

	// a failed lookup is a gateway error, not an unknown registration: the
	// caller must signal the provider to redeliver, the entry stays pending
	id, err := c.gateway.GetRegistrationID(ctx, ev.SubscriptionID)
	if err != nil {
		return errors.Wrapf(err, "resolving subscription %s", ev.SubscriptionID)
	}

	entry, ok := c.take(id)
	if !ok {
		return errors.Wrapf(ErrUnknownRegistration, "registration %s", id)
	}

	if ev.Type == EventPaymentFailed {
		c.logger.Info(fmt.Sprintf("payment failed for school %q, registration %s discarded", entry.reg.Name, id))
		entry.outcome <- Outcome{Status: OutcomeFailed, Reason: "payment failed"}
		return nil
	}

	c.finalize(ctx, entry)
	return nil
}

// take atomically claims the pending entry and cancels its discard timer.
// Whoever takes the entry owns its resolution; the entry stays in the map,
// marked resolved, until AwaitOutcome collects the outcome or the reaper
// drops an abandoned one.
func (c *Coordinator) take(id uuid.UUID) (*pendingEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.pending[id]
	if !ok || entry.resolved {
		return nil, false
	}
	entry.resolved = true
	entry.timer.Stop()
	time.AfterFunc(c.timeout, func() { c.remove(id) })
	return entry, true
}

func (c *Coordinator) remove(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// expire discards a registration whose webhook never arrived. It is a no-op
// when a webhook already resolved the entry.
func (c *Coordinator) expire(id uuid.UUID) {
	entry, ok := c.take(id)
	if !ok {
		return
	}
	c.logger.Warn(fmt.Sprintf("no payment confirmation for school %q within %s, registration %s discarded", entry.reg.Name, c.timeout, id))
	entry.outcome <- Outcome{Status: OutcomeTimedOut, Reason: "payment confirmation timed out"}
}

// finalize materializes the school: it registers the member accounts, derives
// the group list and persists the aggregate. The pending entry is already
// removed at this point, so a duplicate webhook cannot finalize twice; a
// persistence failure signals a failure outcome rather than retrying.
func (c *Coordinator) finalize(ctx context.Context, entry *pendingEntry) {
	reg := entry.reg

	// credentials are only learnable through the welcome email
	for i := range reg.Students {
		reg.Students[i].SendMail = true
	}
	for i := range reg.Teachers {
		reg.Teachers[i].SendMail = true
	}

	studentIDs, err := c.registrar.RegisterStudents(ctx, reg.Students)
	if err != nil {
		c.fail(entry, errors.Wrap(err, "registering students"))
		return
	}
	teacherIDs, err := c.registrar.RegisterTeachers(ctx, reg.Teachers)
	if err != nil {
		c.fail(entry, errors.Wrap(err, "registering teachers"))
		return
	}

	managedBy := make([]string, 0, len(reg.ManagedBy))
	for _, idx := range reg.ManagedBy {
		if idx >= 0 && idx < len(teacherIDs) && teacherIDs[idx] != "" {
			managedBy = append(managedBy, teacherIDs[idx])
		}
	}

	sch, err := c.schools.Create(ctx, school.School{
		Name:                 reg.Name,
		Email:                reg.Email,
		Siret:                reg.Siret,
		Groups:               school.GroupsFromRecords(reg.Students),
		Students:             compactIDs(studentIDs),
		Teachers:             compactIDs(teacherIDs),
		ManagedBy:            managedBy,
		StripeCustomerID:     reg.StripeCustomerID,
		StripeSubscriptionID: reg.StripeSubscriptionID,
	})
	if err != nil {
		c.fail(entry, errors.Wrap(err, "persisting school"))
		return
	}

	c.logger.Info(fmt.Sprintf("payment succeeded for school %q, school %s created", sch.Name, sch.ID))
	entry.outcome <- Outcome{Status: OutcomeSucceeded, SchoolID: sch.ID}
}

func (c *Coordinator) fail(entry *pendingEntry, err error) {
	c.logger.Error(fmt.Sprintf("finalizing registration %s: %v", entry.reg.ID, err), err)
	entry.outcome <- Outcome{Status: OutcomeFailed, Reason: "finalizing school failed"}
}

// PendingCount reports the number of registrations still awaiting
// confirmation. Resolved entries parked for AwaitOutcome are not counted.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, entry := range c.pending {
		if !entry.resolved {
			n++
		}
	}
	return n
}

func compactIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
