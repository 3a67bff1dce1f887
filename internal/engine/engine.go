package engine

import (
	"fmt"
	"sync"

	sorted "github.com/tobshub/go-sortedmap"

	"github.com/keldb/keldb/internal/table"
	"github.com/keldb/keldb/pkg"
)

// Engine is the catalog of named tables plus the statement dispatcher.
// The catalog lock guards membership: CREATE and DROP hold it
// exclusively, every other statement shares it. Individual tables carry
// their own locks.
type Engine struct {
	locker sync.RWMutex

	// name -> table, iterated in name order for deterministic saves
	tables *sorted.SortedMap[string, *table.Table]
}

func New() *Engine {
	return &Engine{
		tables: sorted.New[string, *table.Table](0, func(a, b *table.Table) bool {
			return a.Name < b.Name
		}),
	}
}

func (e *Engine) GetLocker() *sync.RWMutex { return &e.locker }

// AddTable installs a table under the catalog's write lock; the loader
// and CREATE TABLE both come through here.
func (e *Engine) AddTable(t *table.Table) error {
	var err error
	pkg.LockWrap(e, func() {
		err = e.addTableLocked(t)
	})
	return err
}

func (e *Engine) addTableLocked(t *table.Table) error {
	if e.tables.Has(t.Name) {
		return invalidf("table %s already exists", t.Name)
	}
	e.tables.Insert(t.Name, t)
	return nil
}

func (e *Engine) removeTableLocked(name string) error {
	if !e.tables.Has(name) {
		return invalidf("table %s does not exist", name)
	}
	e.tables.Delete(name)
	return nil
}

// getTableLocked resolves a catalog name; the caller holds the catalog
// lock in some mode.
func (e *Engine) getTableLocked(name string) (*table.Table, error) {
	t, ok := e.tables.Get(name)
	if !ok {
		return nil, invalidf("table %s does not exist", name)
	}
	return t, nil
}

// ForEachTable visits the tables in name order under the catalog's read
// lock; persistence iterates through here.
func (e *Engine) ForEachTable(visit func(t *table.Table) error) error {
	var err error
	pkg.RLockWrap(e, func() {
		iter, iterErr := e.tables.IterCh()
		if iterErr != nil {
			// an empty catalog has nothing to iterate
			return
		}
		defer iter.Close()
		for record := range iter.Records() {
			if err = visit(record.Val); err != nil {
				return
			}
		}
	})
	return err
}

// TableCount reports the number of tables in the catalog.
func (e *Engine) TableCount() int {
	count := 0
	pkg.RLockWrap(e, func() {
		count = e.tables.Len()
	})
	return count
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
