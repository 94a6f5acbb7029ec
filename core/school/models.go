package school

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/user"
)

var ErrNotFound = errors.New("school not found")

// School is the aggregate materialized once a registration's payment is
// confirmed. It is immutable afterwards except through explicit admin CRUD.
type School struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Siret     string    `json:"siret"`
	Groups    []string  `json:"groups"`
	Students  []string  `json:"students"`
	Teachers  []string  `json:"teachers"`
	ManagedBy []string  `json:"managed_by"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC

	StripeCustomerID     string `json:"-"`
	StripeSubscriptionID string `json:"-"`
}

type Repository interface {
	CreateSchool(ctx context.Context, sch School) (School, error)
	GetSchoolByID(ctx context.Context, id string) (School, error)
	QueryAllSchools(ctx context.Context) ([]School, error)
	DeleteSchoolsByID(ctx context.Context, ids ...string) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, sch School) (School, error) {
	now := time.Now().UTC()
	sch.CreatedAt = now
	sch.UpdatedAt = now
	return svc.repo.CreateSchool(ctx, sch)
}

func (svc *Service) GetByID(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchoolByID(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]School, error) {
	return svc.repo.QueryAllSchools(ctx)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteSchoolsByID(ctx, ids...)
}

// GroupsFromRecords derives the school's group list as the ordered,
// deduplicated set of the students' normalized group labels.
func GroupsFromRecords(students []user.Record) []string {
	seen := make(map[string]struct{}, len(students))
	groups := make([]string, 0, len(students))
	for _, rec := range students {
		g := core.CollapseSpaces(rec.Group)
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		groups = append(groups, g)
	}
	return groups
}
