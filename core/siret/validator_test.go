package siret_test

import (
	"context"
	"testing"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/siret"
	inmemdb "github.com/vladapp/backend/storage/database/inmem"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeRegistry struct {
	lookups int
	answers map[string]siret.Establishment
}

func (r *fakeRegistry) Lookup(ctx context.Context, number string) (siret.Establishment, error) {
	r.lookups++
	est, ok := r.answers[number]
	if !ok {
		return siret.Establishment{}, siret.ErrNotRegistered
	}
	return est, nil
}

func newTestValidator(registry *fakeRegistry) *siret.Validator {
	conf := &core.Config{}
	conf.Siret.AllowedActivityPrefixes = []string{"85"}
	return siret.NewValidator(registry, inmemdb.NewKeyedStore(), nopLogger{}, conf)
}

func TestValidator_Check(t *testing.T) {
	registry := &fakeRegistry{answers: map[string]siret.Establishment{
		"11111111111111": {Siret: "11111111111111", Name: "Lycée A", ActivityCode: "85.31Z"},
		"22222222222222": {Siret: "22222222222222", Name: "Boulangerie B", ActivityCode: "10.71C"},
	}}
	v := newTestValidator(registry)
	ctx := context.Background()

	if err := v.Check(ctx, "11111111111111"); err != nil {
		t.Errorf("Check(school) error = %v", err)
	}

	err := v.Check(ctx, "22222222222222")
	if err == nil {
		t.Fatal("Check(bakery) must fail the activity allow-list")
	}
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("Check(bakery) error type = %T, want *core.ValidationError", err)
	}

	err = v.Check(ctx, "33333333333333")
	if err == nil {
		t.Fatal("Check(unknown) must fail")
	}
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("Check(unknown) error type = %T, want *core.ValidationError", err)
	}
}

func TestValidator_CheckUsesCache(t *testing.T) {
	registry := &fakeRegistry{answers: map[string]siret.Establishment{
		"11111111111111": {Siret: "11111111111111", ActivityCode: "8531Z"},
	}}
	v := newTestValidator(registry)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := v.Check(ctx, "11111111111111"); err != nil {
			t.Fatalf("Check() #%d error = %v", i, err)
		}
	}
	if registry.lookups != 1 {
		t.Errorf("registry lookups = %d, want 1 (cached afterwards)", registry.lookups)
	}
}

func TestValidator_activityPrefixNormalization(t *testing.T) {
	// dotted NAF codes match undotted prefixes and vice versa
	registry := &fakeRegistry{answers: map[string]siret.Establishment{
		"11111111111111": {ActivityCode: "85.59B"},
	}}
	conf := &core.Config{}
	conf.Siret.AllowedActivityPrefixes = []string{"85.5"}
	v := siret.NewValidator(registry, inmemdb.NewKeyedStore(), nopLogger{}, conf)

	if err := v.Check(context.Background(), "11111111111111"); err != nil {
		t.Errorf("Check() error = %v", err)
	}
}
