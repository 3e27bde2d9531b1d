package checklist

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeedYAML []byte

// SeedCategory is the YAML shape of a seeded category.
type SeedCategory struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Sections    []SeedSection `yaml:"sections"`
}

// SeedSection is the YAML shape of a seeded section; items are plain descriptions.
type SeedSection struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Items       []string `yaml:"items"`
}

// DefaultSeed returns the built-in vessel compliance checklist.
func DefaultSeed() ([]SeedCategory, error) {
	var cats []SeedCategory
	if err := yaml.Unmarshal(defaultSeedYAML, &cats); err != nil {
		return nil, fmt.Errorf("parse default seed: %w", err)
	}
	return cats, nil
}

// LoadSeed parses a seed file with the same layout as the built-in one.
func LoadSeed(data []byte) ([]SeedCategory, error) {
	var cats []SeedCategory
	if err := yaml.Unmarshal(data, &cats); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return cats, nil
}

// Seed inserts cats when the store holds no categories yet. It returns the
// number of items inserted; 0 means the store was already populated.
func (s *SQLiteStore) Seed(ctx context.Context, cats []SeedCategory) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checklist_categories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	created := s.now().UTC().Format(time.RFC3339Nano)
	inserted := 0
	for _, c := range cats {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO checklist_categories (name, description, created_at) VALUES (?, ?, ?)`,
			c.Name, c.Description, created)
		if err != nil {
			return 0, fmt.Errorf("insert category %q: %w", c.Name, err)
		}
		catID, _ := res.LastInsertId()

		for si, sec := range c.Sections {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO checklist_sections (category_id, name, description, "order", created_at)
				VALUES (?, ?, ?, ?, ?)`,
				catID, sec.Name, sec.Description, si+1, created)
			if err != nil {
				return 0, fmt.Errorf("insert section %q: %w", sec.Name, err)
			}
			secID, _ := res.LastInsertId()

			for ii, desc := range sec.Items {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO checklist_items (section_id, description, "order", created_at)
					VALUES (?, ?, ?, ?)`,
					secID, desc, ii+1, created); err != nil {
					return 0, fmt.Errorf("insert item %q: %w", desc, err)
				}
				inserted++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return inserted, nil
}
