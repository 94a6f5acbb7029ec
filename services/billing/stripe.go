package billingsvc

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/customer"
	"github.com/stripe/stripe-go/v81/product"
	"github.com/stripe/stripe-go/v81/subscription"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/registration"
)

const registrationIDKey = "registration_id"

type stripeGateway struct {
	currency string
	logger   core.Logger
}

var _ registration.Gateway = (*stripeGateway)(nil)

func NewStripeGateway(conf *core.Config, logger core.Logger) registration.Gateway {
	stripe.Key = conf.Stripe.SecretKey
	return &stripeGateway{
		currency: conf.Stripe.Currency,
		logger:   logger,
	}
}

// StartSubscription creates the customer, product and subscription for a school
// registration. The subscription carries the registration ID in its metadata so
// that invoice webhooks can be correlated back to the pending registration.
func (gw *stripeGateway) StartSubscription(ctx context.Context, sub registration.NewSubscription) (registration.Subscription, error) {
	cust, err := customer.New(&stripe.CustomerParams{
		Params: stripe.Params{
			Context:  ctx,
			Metadata: map[string]string{registrationIDKey: sub.RegistrationID.String()},
		},
		Name:          stripe.String(sub.Name),
		Email:         stripe.String(sub.Email),
		PaymentMethod: stripe.String(sub.PaymentMethodID),
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(sub.PaymentMethodID),
		},
	})
	if err != nil {
		return registration.Subscription{}, errors.Wrap(err, "creating customer")
	}

	prod, err := product.New(&stripe.ProductParams{
		Params: stripe.Params{
			Context:  ctx,
			Metadata: map[string]string{registrationIDKey: sub.RegistrationID.String()},
		},
		Name: stripe.String("Abonnement " + sub.Name),
	})
	if err != nil {
		return registration.Subscription{}, errors.Wrap(err, "creating product")
	}

	params := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context:  ctx,
			Metadata: map[string]string{registrationIDKey: sub.RegistrationID.String()},
		},
		Customer: stripe.String(cust.ID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				PriceData: &stripe.SubscriptionItemPriceDataParams{
					Currency:   stripe.String(gw.currency),
					Product:    stripe.String(prod.ID),
					UnitAmount: stripe.Int64(sub.AmountCents),
					Recurring: &stripe.SubscriptionItemPriceDataRecurringParams{
						Interval: stripe.String("month"),
					},
				},
			},
		},
		DefaultPaymentMethod: stripe.String(sub.PaymentMethodID),
		PaymentBehavior:      stripe.String("default_incomplete"),
	}
	params.AddExpand("latest_invoice.payment_intent")

	s, err := subscription.New(params)
	if err != nil {
		return registration.Subscription{}, errors.Wrap(err, "creating subscription")
	}

	gw.logger.Info(
		"started subscription " + s.ID + " for registration " + sub.RegistrationID.String(),
	)

	res := registration.Subscription{
		CustomerID:     cust.ID,
		SubscriptionID: s.ID,
	}
	if s.LatestInvoice != nil && s.LatestInvoice.PaymentIntent != nil {
		res.ClientSecret = s.LatestInvoice.PaymentIntent.ClientSecret
	}
	return res, nil
}

// GetRegistrationID resolves the registration a subscription belongs to.
// A subscription that does not exist or carries no correlation metadata maps
// to ErrUnknownRegistration; a failed provider call surfaces as is so the
// caller can have the event redelivered.
func (gw *stripeGateway) GetRegistrationID(ctx context.Context, subscriptionID string) (uuid.UUID, error) {
	s, err := subscription.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		if sErr, ok := err.(*stripe.Error); ok && sErr.Code == stripe.ErrorCodeResourceMissing {
			return uuid.Nil, errors.Wrapf(registration.ErrUnknownRegistration, "subscription %s: %v", subscriptionID, err)
		}
		return uuid.Nil, errors.Wrap(err, "fetching subscription")
	}
	raw, ok := s.Metadata[registrationIDKey]
	if !ok {
		return uuid.Nil, errors.Wrapf(registration.ErrUnknownRegistration, "subscription %s has no %s metadata", subscriptionID, registrationIDKey)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Wrapf(registration.ErrUnknownRegistration, "parsing %s: %v", registrationIDKey, err)
	}
	return id, nil
}
