package manager_test

import (
	"os"
	"path"
	"strings"
	"testing"

	"github.com/keldb/keldb/internal/engine"
	. "github.com/keldb/keldb/internal/manager"
	"gotest.tools/assert"
)

func TestOpenInitializesDirectory(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "db")

	m, err := Open(dbPath, engine.New())
	assert.NilError(t, err)
	defer m.Unlock()

	_, err = os.Stat(path.Join(dbPath, ".magic.db"))
	assert.NilError(t, err)
	_, err = os.Stat(path.Join(dbPath, ".lock.db"))
	assert.NilError(t, err)
}

func TestOpenRejectsNonDatabaseDirectory(t *testing.T) {
	dbPath := t.TempDir() // exists but has no magic file

	_, err := Open(dbPath, engine.New())
	assert.ErrorContains(t, err, "is not a database")
}

func TestOpenRejectsLockedDatabase(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "db")

	m, err := Open(dbPath, engine.New())
	assert.NilError(t, err)
	defer m.Unlock()

	_, err = Open(dbPath, engine.New())
	assert.ErrorContains(t, err, "already locked")
}

func TestSaveAndReload(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "db")

	e := engine.New()
	m, err := Open(dbPath, e)
	assert.NilError(t, err)

	res := e.ProcessQuery("CREATE TABLE users (id INT, name STRING);")
	assert.Assert(t, strings.HasPrefix(res, "OK"), res)
	e.ProcessQuery(`INSERT INTO users VALUES (1, "ann");`)
	e.ProcessQuery(`INSERT INTO users VALUES (2, "bob");`)

	assert.NilError(t, m.Close())

	// the lock is released, a fresh manager can load the saved state
	reloaded := engine.New()
	m2, err := Open(dbPath, reloaded)
	assert.NilError(t, err)
	defer m2.Unlock()

	assert.Equal(t, reloaded.TableCount(), 1)
	res = reloaded.ProcessQuery("SELECT name FROM users WHERE id = 2;")
	assert.Equal(t, res, "name,\nSTRING,\nbob,\n")
}

func TestSaveKeepsLock(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "db")

	m, err := Open(dbPath, engine.New())
	assert.NilError(t, err)
	defer m.Unlock()

	assert.NilError(t, m.Save())

	// still locked after the directory swap
	_, err = Open(dbPath, engine.New())
	assert.ErrorContains(t, err, "already locked")
}

func TestNonTableFilesAreSkipped(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "db")

	m, err := Open(dbPath, engine.New())
	assert.NilError(t, err)
	m.Unlock()

	// a stray .db file must not be loaded as a table
	assert.NilError(t, os.WriteFile(path.Join(dbPath, "notes.db"), []byte("junk"), 0644))

	e := engine.New()
	m2, err := Open(dbPath, e)
	assert.NilError(t, err)
	defer m2.Unlock()
	assert.Equal(t, e.TableCount(), 0)
}
