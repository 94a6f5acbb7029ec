package siret

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/vladapp/backend/core"
)

var (
	ErrNotRegistered      = errors.New("no establishment registered under this SIRET")
	ErrActivityNotAllowed = errors.New("this business activity may not register a school")
)

// Establishment is the registry's answer for a SIRET lookup.
type Establishment struct {
	Siret        string
	Name         string
	ActivityCode string // NAF code, e.g. "85.31Z"
}

// Registry is the external company registry. Lookup returns ErrNotRegistered
// for unknown numbers.
type Registry interface {
	Lookup(ctx context.Context, siret string) (Establishment, error)
}

// Validator gatekeeps onboarding on the registrant's declared business
// activity. Registry answers are cached for the process lifetime since SIRET
// records effectively never change under us.
type Validator struct {
	registry Registry
	cache    core.KeyedStore
	allowed  []string
	logger   core.Logger
}

func NewValidator(registry Registry, cache core.KeyedStore, logger core.Logger, conf *core.Config) *Validator {
	return &Validator{
		registry: registry,
		cache:    cache,
		allowed:  conf.Siret.AllowedActivityPrefixes,
		logger:   logger,
	}
}

// Check resolves the SIRET's activity code (from cache or the registry) and
// verifies it against the allow-list.
func (v *Validator) Check(ctx context.Context, siret string) error {
	code, err := v.activityCode(ctx, siret)
	if err != nil {
		if errors.Cause(err) == ErrNotRegistered {
			return core.NewValidationError(err, core.FieldError{Field: "siret", Error: err.Error()})
		}
		return err
	}

	if !v.activityAllowed(code) {
		return core.NewValidationError(ErrActivityNotAllowed,
			core.FieldError{Field: "siret", Error: ErrActivityNotAllowed.Error()})
	}
	return nil
}

func (v *Validator) activityCode(ctx context.Context, siret string) (string, error) {
	key := "siret:" + siret
	if cached, err := v.cache.Get(ctx, key); err == nil {
		return string(cached), nil
	} else if errors.Cause(err) != core.ErrKeyNotFound {
		return "", errors.Wrap(err, "reading siret cache")
	}

	est, err := v.registry.Lookup(ctx, siret)
	if err != nil {
		return "", err
	}
	if err = v.cache.Put(ctx, key, []byte(est.ActivityCode), 0 /* no expiry */); err != nil {
		// a cold cache only costs an extra lookup next time
		v.logger.Warn("caching siret lookup: "+err.Error(), err)
	}
	return est.ActivityCode, nil
}

func (v *Validator) activityAllowed(code string) bool {
	normalized := strings.ReplaceAll(code, ".", "")
	for _, prefix := range v.allowed {
		if strings.HasPrefix(normalized, strings.ReplaceAll(prefix, ".", "")) {
			return true
		}
	}
	return false
}
