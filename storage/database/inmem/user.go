package inmemdb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vladapp/backend/core/user"
)

type userRepository struct {
	db *userTable
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, *u)
	}
	return users
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, u := range repo.db.table {
		if u.Kind == usr.Kind && u.Identity == usr.Identity {
			return user.User{}, user.ErrIdentityExists
		}
	}
	usr.ID = uuid.New().String()
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) CountIdentityPrefix(ctx context.Context, kind, prefix string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, u := range repo.db.table {
		if u.Kind != kind {
			continue
		}
		if u.Identity == prefix || (strings.HasPrefix(u.Identity, prefix) && isDigits(u.Identity[len(prefix):])) {
			count++
		}
	}
	return count, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.query() {
		if filter.Kind != "" && usr.Kind != filter.Kind {
			continue
		}
		if filter.ID != "" && usr.ID != filter.ID {
			continue
		}
		if filter.IdentityOrEmail != "" &&
			usr.Identity != filter.IdentityOrEmail && usr.Email != filter.IdentityOrEmail {
			continue
		}
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	// only save set fields
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	if usr.RefreshToken != "" {
		orig.RefreshToken = usr.RefreshToken
	}
	if usr.Email != "" {
		orig.Email = usr.Email
	}
	if usr.Group != "" {
		orig.Group = usr.Group
	}
	orig.UpdatedAt = usr.UpdatedAt
	return *orig, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
