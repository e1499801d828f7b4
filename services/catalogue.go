package services

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"

	"omoide-album/conditions"
	"omoide-album/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/pelletier/go-toml/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed catalogue.toml
var defaultCatalogue []byte

type CatalogueEntry struct {
	Name          string         `toml:"name"`
	Description   string         `toml:"description"`
	Icon          string         `toml:"icon"`
	ConditionType string         `toml:"condition_type"`
	Condition     map[string]any `toml:"condition"`
}

type catalogueFile struct {
	Badges []CatalogueEntry `toml:"badge"`
}

// DefaultCatalogue returns the built-in badge definitions.
func DefaultCatalogue() ([]CatalogueEntry, error) {
	return ParseCatalogue(bytes.NewReader(defaultCatalogue))
}

func ParseCatalogue(r io.Reader) ([]CatalogueEntry, error) {
	var f catalogueFile
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode badge catalogue: %w", err)
	}
	return f.Badges, nil
}

// CatalogueBadges turns entries into badge rows, rejecting entries the registry cannot evaluate.
func CatalogueBadges(registry *conditions.Registry, entries []CatalogueEntry) ([]models.Badge, error) {
	badges := make([]models.Badge, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	codes := make(map[string]bool, len(entries))

	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("catalogue entry %d has no name", i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("catalogue entry %q is duplicated", e.Name)
		}
		seen[e.Name] = true

		params, err := json.Marshal(e.Condition)
		if err != nil {
			return nil, fmt.Errorf("encode %q condition: %w", e.Name, err)
		}
		if err := registry.Validate(e.ConditionType, params); err != nil {
			return nil, fmt.Errorf("catalogue entry %q: %w", e.Name, err)
		}

		code := badgeCode(e.Name)
		if codes[code] {
			code = suffixedBadgeCode(e.Name)
		}
		codes[code] = true
		badges = append(badges, models.Badge{
			Code:           code,
			Name:           e.Name,
			Description:    e.Description,
			IconPath:       e.Icon,
			ConditionType:  e.ConditionType,
			ConditionValue: params,
			Position:       i + 1,
		})
	}
	return badges, nil
}

func badgeCode(name string) string {
	code := slug.Make(name)
	if code == "" {
		code = "badge"
	}
	return code
}

// suffixedBadgeCode depends only on the name, so reordering the catalogue never changes it.
func suffixedBadgeCode(name string) string {
	return fmt.Sprintf("%s-%08x", badgeCode(name), crc32.ChecksumIEEE([]byte(name)))
}

// SeedCatalogue inserts missing badges. Existing rows, matched by name, are left as they are.
func SeedCatalogue(ctx context.Context, db *gorm.DB, registry *conditions.Registry, entries []CatalogueEntry) (int64, error) {
	badges, err := CatalogueBadges(registry, entries)
	if err != nil {
		return 0, err
	}

	var inserted int64
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.Badge
		if err := tx.Select("name", "code").Find(&existing).Error; err != nil {
			return fmt.Errorf("load seeded badges: %w", err)
		}
		names := make(map[string]bool, len(existing))
		codes := make(map[string]bool, len(existing))
		for _, b := range existing {
			names[b.Name] = true
			codes[b.Code] = true
		}

		for i := range badges {
			if names[badges[i].Name] {
				continue
			}
			if codes[badges[i].Code] {
				badges[i].Code = suffixedBadgeCode(badges[i].Name)
				if codes[badges[i].Code] {
					return fmt.Errorf("seed badge %q: code %q already taken", badges[i].Name, badges[i].Code)
				}
			}
			codes[badges[i].Code] = true
			badges[i].ID = uuid.NewString()
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoNothing: true,
			}).Create(&badges[i])
			if res.Error != nil {
				return fmt.Errorf("seed badge %q: %w", badges[i].Name, res.Error)
			}
			inserted += res.RowsAffected
		}
		return nil
	})
	return inserted, err
}
