// Package migrate applies versioned SQL migrations and records them in the
// worm_migrations table.
package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// ErrInvalidMigration is returned for misnamed or incomplete migration files
var ErrInvalidMigration = errors.New("invalid migration")

// Migration is one versioned schema change
type Migration struct {
	Version   int64
	Name      string
	Up        string
	Down      string
	AppliedAt time.Time
}

// fileName matches 20240101120000_create_post.up.sql and its .down.sql pair
var fileName = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

// LoadDir reads the migrations in dir
func LoadDir(dir string) ([]*Migration, error) {
	return Load(os.DirFS(dir))
}

// Load reads every <version>_<name>.up.sql file in the root of fsys, with
// its optional .down.sql, sorted by version. Other files are ignored.
func Load(fsys fs.FS) ([]*Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	byVersion := make(map[int64]*Migration)
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		m := fileName.FindStringSubmatch(entry.Name())
		if m == nil {
			return nil, fmt.Errorf("%w: %s does not match <version>_<name>.up.sql", ErrInvalidMigration, entry.Name())
		}

		version, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMigration, entry.Name(), err)
		}
		body, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version, Name: m[2]}
			byVersion[version] = mig
		} else if mig.Name != m[2] {
			return nil, fmt.Errorf("%w: version %d is used by %s and %s", ErrInvalidMigration, version, mig.Name, m[2])
		}

		if m[3] == "up" {
			mig.Up = string(body)
		} else {
			mig.Down = string(body)
		}
	}

	migrations := make([]*Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.Up == "" {
			return nil, fmt.Errorf("%w: %d_%s has no up SQL", ErrInvalidMigration, mig.Version, mig.Name)
		}
		migrations = append(migrations, mig)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}
