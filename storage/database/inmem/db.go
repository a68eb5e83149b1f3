package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/core/tardiness"
	"github.com/telatku/telatku/core/user"
)

type (
	// DB keeps every table in memory, rows in insertion order.
	DB struct {
		mutex sync.RWMutex
		txMu  sync.Mutex

		tables

		// OnRecordChange, when set, is called after each tardiness record write, like the
		// tardiness_records_changes notifications of PostgreSQL.
		OnRecordChange func(op, id string)
	}

	tables struct {
		classes  []class.Class
		profiles []user.User // Role is kept in roles
		roles    map[string]user.Role
		students []student.Student // without class columns
		records  []tardiness.Record
	}

	txKey struct{}
)

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return &DB{tables: tables{roles: make(map[string]user.Role)}}
}

func (t tables) clone() tables {
	c := tables{
		classes:  append([]class.Class(nil), t.classes...),
		profiles: append([]user.User(nil), t.profiles...),
		roles:    make(map[string]user.Role, len(t.roles)),
		students: append([]student.Student(nil), t.students...),
		records:  append([]tardiness.Record(nil), t.records...),
	}
	for k, v := range t.roles {
		c.roles[k] = v
	}
	return c
}

// RunInTx runs fn with a snapshot of the tables that is restored when fn fails.
// Transactions are serialized; nested calls join the running transaction.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mutex.RLock()
	snapshot := db.tables.clone()
	db.mutex.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		db.mutex.Lock()
		db.tables = snapshot
		db.mutex.Unlock()
		return err
	}
	return nil
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.tables = tables{roles: make(map[string]user.Role)}
}

func newID() string { return uuid.New().String() }

func notify(db *DB, op, id string) {
	if db.OnRecordChange != nil {
		db.OnRecordChange(op, id)
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// compareFunc compares two rows on one field: <0, 0 or >0.
type compareFunc[T any] func(a, b T) int

// sortRows orders rows by orderings, ignoring unknown fields; ties keep insertion order.
func sortRows[T any](rows []T, orderings []core.DBOrdering, fields map[string]compareFunc[T]) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range orderings {
			cmp, ok := fields[ord.Field]
			if !ok {
				continue
			}
			c := cmp(rows[i], rows[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func intCompare(a, b int) int { return a - b }
