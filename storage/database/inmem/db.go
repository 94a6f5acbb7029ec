package inmemdb

import (
	"sync"

	"github.com/vladapp/backend/core/school"
	"github.com/vladapp/backend/core/user"
)

// DB is an in-memory database used in tests and local development.
type DB struct {
	user   *userTable
	school *schoolTable
}

func NewDB() *DB {
	return &DB{
		user:   &userTable{table: make(map[string]*user.User)},
		school: &schoolTable{table: make(map[string]*school.School)},
	}
}

type userTable struct {
	mutex sync.RWMutex
	table map[string]*user.User
}

type schoolTable struct {
	mutex sync.RWMutex
	table map[string]*school.School
}
