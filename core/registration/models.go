package registration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vladapp/backend/core/school"
	"github.com/vladapp/backend/core/user"
)

var (
	// ErrUnknownRegistration is returned when an event or wait references a
	// correlation id with no pending entry (stale, duplicate or expired).
	ErrUnknownRegistration = errors.New("unknown or expired registration")
)

// NewRegistration is the validated onboarding payload: school metadata plus
// the member records already parsed from the CSV uploads.
type NewRegistration struct {
	Name            string
	Email           string
	Siret           string
	PaymentMethodID string
	// ManagedBy holds indices into Teachers designating the managing subset.
	ManagedBy []int
	Teachers  []user.Record
	Students  []user.Record
}

// PendingRegistration is the immutable payload held between the onboarding
// request and the payment webhook. It exists in the pending store from
// creation until exactly one of {finalized, discarded} occurs.
type PendingRegistration struct {
	ID                   uuid.UUID
	Name                 string
	Email                string
	Siret                string
	ManagedBy            []int
	Teachers             []user.Record
	Students             []user.Record
	StripeCustomerID     string
	StripeSubscriptionID string
	CreatedAt            time.Time
}

// Outcome statuses.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimedOut  = "timed_out"
)

// Outcome resolves a pending registration for the suspended onboarding request.
type Outcome struct {
	Status   string
	SchoolID string
	Reason   string
}

// Event types reported by the payment provider webhook.
const (
	EventPaymentSucceeded = "invoice.payment_succeeded"
	EventPaymentFailed    = "invoice.payment_failed"
)

// Event is the provider callback reduced to what the coordinator needs: the
// event type and the subscription reference (webhook payloads carry no
// correlation id, it must be recovered from the subscription's metadata).
type Event struct {
	Type           string
	SubscriptionID string
}

type (
	// NewSubscription asks the gateway to start billing for a registration.
	NewSubscription struct {
		RegistrationID  uuid.UUID
		Name            string
		Email           string
		PaymentMethodID string
		AmountCents     int64
		StudentCount    int
		TeacherCount    int
	}

	// Subscription is the gateway's answer to a started subscription.
	Subscription struct {
		CustomerID     string
		SubscriptionID string
		ClientSecret   string
	}

	// Gateway wraps the payment provider's customer/product/price/subscription
	// primitives. The registration id is tagged on the subscription as metadata,
	// the only channel available to correlate the later webhook.
	Gateway interface {
		StartSubscription(ctx context.Context, sub NewSubscription) (Subscription, error)
		// GetRegistrationID recovers the correlation id tagged on the
		// subscription. A subscription without one resolves to
		// ErrUnknownRegistration; a failed provider call returns the failure
		// itself, which must not be mistaken for an unknown correlation.
		GetRegistrationID(ctx context.Context, subscriptionID string) (uuid.UUID, error)
	}

	// Registrar bulk-creates member accounts. The returned ids are positional:
	// ids[i] belongs to records[i] and is empty when that record failed.
	Registrar interface {
		RegisterStudents(ctx context.Context, recs []user.Record) ([]string, error)
		RegisterTeachers(ctx context.Context, recs []user.Record) ([]string, error)
	}

	// Schools persists the finalized aggregate.
	Schools interface {
		Create(ctx context.Context, sch school.School) (school.School, error)
	}

	// SiretChecker gatekeeps which business activities may register.
	SiretChecker interface {
		Check(ctx context.Context, siret string) error
	}
)
