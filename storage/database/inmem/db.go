// Package inmemdb provides in-memory repository implementations with the
// same semantics as the postgres ones. Used by tests and local development.
package inmemdb

import (
	"encoding/json"
	"sync"

	"github.com/sorobanclub/backend/core/session"
	"github.com/sorobanclub/backend/core/student"
	"github.com/sorobanclub/backend/core/user"
)

type DB struct {
	mu         sync.RWMutex
	users      map[string]user.User
	students   map[string]student.Student
	classrooms map[string]student.Classroom
	plans      map[string]session.SessionPlan
}

func Open() *DB {
	return &DB{
		users:      make(map[string]user.User),
		students:   make(map[string]student.Student),
		classrooms: make(map[string]student.Classroom),
		plans:      make(map[string]session.SessionPlan),
	}
}

// deepCopy round-trips v through JSON so stored values never share slices
// with callers, like rows scanned from postgres.
func deepCopy(src, dst interface{}) {
	b, err := json.Marshal(src)
	if err != nil {
		panic(err)
	}
	if err = json.Unmarshal(b, dst); err != nil {
		panic(err)
	}
}
