package manager

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/keldb/keldb/internal/engine"
	"github.com/keldb/keldb/internal/storage"
	"github.com/keldb/keldb/internal/table"
	"github.com/keldb/keldb/pkg"
)

const (
	magicFileName = ".magic.db"
	lockFileName  = ".lock.db"
)

// Manager owns a database directory: one file per table plus the magic
// marker and the lock file. It loads the catalog on open and saves it by
// building a fresh directory and renaming it over the old one.
type Manager struct {
	path   string
	engine *engine.Engine
	locked bool
}

// Open initializes the directory when missing, takes the directory lock
// and loads every table file into the engine's catalog.
func Open(dbPath string, e *engine.Engine) (*Manager, error) {
	m := &Manager{path: dbPath, engine: e}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		if err := initDirectory(dbPath); err != nil {
			return nil, err
		}
	}

	if err := checkDirectory(dbPath); err != nil {
		return nil, err
	}
	if err := lockDirectory(dbPath); err != nil {
		return nil, err
	}
	m.locked = true

	if err := m.load(); err != nil {
		m.Unlock()
		return nil, err
	}

	pkg.InfoLog("loaded database from", dbPath)
	return m, nil
}

// isTableFile: magics, locks and other .db files are not tables.
func isTableFile(name string) bool {
	return !strings.HasSuffix(name, ".db")
}

func (m *Manager) load() error {
	entries, err := os.ReadDir(m.path)
	if err != nil {
		return errors.Wrap(err, "reading database directory")
	}

	entries = pkg.Filter(entries, func(entry os.DirEntry) bool {
		return !entry.IsDir() && isTableFile(entry.Name())
	})

	for _, entry := range entries {
		filename := path.Join(m.path, entry.Name())

		f, err := os.Open(filename)
		if err != nil {
			return errors.Wrapf(err, "failed to open table %s", filename)
		}

		t, err := storage.LoadTable(f)
		f.Close()
		if err != nil {
			return errors.Wrapf(err, "failed to parse table %s", filename)
		}

		t.Name = entry.Name()
		if err := m.engine.AddTable(t); err != nil {
			return err
		}
	}
	return nil
}

func checkDirectory(dbPath string) error {
	info, err := os.Stat(dbPath)
	if err != nil || !info.IsDir() {
		return errors.Errorf("path %s does not exist or is not a directory", dbPath)
	}
	if _, err := os.Stat(path.Join(dbPath, magicFileName)); err != nil {
		return errors.Errorf("path %s is not a database", dbPath)
	}
	return nil
}

func lockDirectory(dbPath string) error {
	lockPath := path.Join(dbPath, lockFileName)
	if _, err := os.Stat(lockPath); err == nil {
		return errors.New("database is already locked")
	}
	if err := os.WriteFile(lockPath, nil, 0644); err != nil {
		return errors.Wrap(err, "failed to lock database")
	}
	return nil
}

func unlockDirectory(dbPath string) error {
	if err := os.Remove(path.Join(dbPath, lockFileName)); err != nil {
		return errors.New("no lock file when unlocking - database might be corrupted!")
	}
	return nil
}

func initDirectory(dbPath string) error {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	if err := os.WriteFile(path.Join(dbPath, magicFileName), nil, 0644); err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	return nil
}

// tempDir returns a unique sibling of the database directory, so the
// final rename never crosses a filesystem boundary.
func (m *Manager) tempDir() string {
	parent := filepath.Dir(filepath.Clean(m.path))
	return path.Join(parent, "."+uuid.NewString()+".tmp")
}

// Save dumps every table into a fresh directory and renames it over the
// database path. The marker and lock files are written into the fresh
// directory first, so the held lock survives the swap.
func (m *Manager) Save() error {
	tempPath := m.tempDir()
	if err := initDirectory(tempPath); err != nil {
		return err
	}
	defer os.RemoveAll(tempPath)

	if m.locked {
		if err := lockDirectory(tempPath); err != nil {
			return err
		}
	}

	err := m.engine.ForEachTable(func(t *table.Table) error {
		f, err := os.Create(path.Join(tempPath, t.Name))
		if err != nil {
			return errors.Wrapf(err, "failed to create table file for %s", t.Name)
		}
		defer f.Close()
		return storage.SerializeTable(t, f)
	})
	if err != nil {
		return err
	}

	// make sure the target still looks like our database before
	// replacing it
	if err := checkDirectory(m.path); err != nil {
		return err
	}
	if err := os.RemoveAll(m.path); err != nil {
		return errors.Wrap(err, "failed to replace database directory")
	}
	if err := os.Rename(tempPath, m.path); err != nil {
		return errors.Wrap(err, "failed to move new database directory")
	}

	pkg.DebugLog("database saved to", m.path)
	return nil
}

// Unlock releases the directory lock; called on shutdown after the
// final save.
func (m *Manager) Unlock() {
	if !m.locked {
		return
	}
	m.locked = false
	if err := unlockDirectory(m.path); err != nil {
		pkg.ErrorLog(err)
	}
}

// Close saves and unlocks.
func (m *Manager) Close() error {
	err := m.Save()
	m.Unlock()
	return err
}
