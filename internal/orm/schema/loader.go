package schema

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// entityDoc is the YAML shape of an entity descriptor. Fields are kept as a raw
// node so their declaration order survives decoding.
type entityDoc struct {
	Table         string         `yaml:"table"`
	Fields        yaml.Node      `yaml:"fields"`
	PrimaryKey    []string       `yaml:"primary_key"`
	ManyToMany    *manyToManyDoc `yaml:"many_to_many"`
	Relationships yaml.Node      `yaml:"relationships"`
	Validate      *validateDoc   `yaml:"validate"`
}

type manyToManyDoc struct {
	ParentField string `yaml:"parent_field"`
	ChildField  string `yaml:"child_field"`
}

type relationshipDoc struct {
	Field         string   `yaml:"field"`
	MapsTo        string   `yaml:"maps_to"`
	WithField     string   `yaml:"with_field"`
	WithFields    []string `yaml:"with_fields"`
	WithOurField  string   `yaml:"with_our_field"`
	InsertOnly    bool     `yaml:"insert_only"`
	CascadeDelete bool     `yaml:"cascade_delete"`
}

// Load decodes every YAML document in r into an entity descriptor.
// A validate section becomes the entity's Validator; BeforeSave hooks must be attached in code.
func Load(r io.Reader) ([]*Entity, error) {
	dec := yaml.NewDecoder(r)

	var entities []*Entity
	for {
		var doc entityDoc
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}

		entity, err := doc.entity()
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	return entities, nil
}

// LoadFile loads the entity descriptors in a single YAML file
func LoadFile(path string) ([]*Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema file: %w", err)
	}
	defer f.Close()

	entities, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entities, nil
}

// LoadDir loads every *.yaml and *.yml file in dir, in file name order
func LoadDir(dir string) ([]*Entity, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	var entities []*Entity
	for _, file := range files {
		loaded, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		entities = append(entities, loaded...)
	}
	return entities, nil
}

func (d *entityDoc) entity() (*Entity, error) {
	entity := &Entity{
		Table:      d.Table,
		PrimaryKey: d.PrimaryKey,
	}
	if d.ManyToMany != nil {
		entity.ManyToMany = &ManyToMany{
			ParentField: d.ManyToMany.ParentField,
			ChildField:  d.ManyToMany.ChildField,
		}
	}

	if d.Fields.Kind != 0 {
		if d.Fields.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: %s: fields must be a mapping", ErrInvalidSchema, d.Table)
		}
		entity.Fields = make([]Field, 0, len(d.Fields.Content)/2)
		for i := 0; i+1 < len(d.Fields.Content); i += 2 {
			var def interface{}
			if err := d.Fields.Content[i+1].Decode(&def); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidSchema, d.Table, d.Fields.Content[i].Value, err)
			}
			entity.Fields = append(entity.Fields, F(d.Fields.Content[i].Value, def))
		}
	}

	if d.Relationships.Kind != 0 {
		if d.Relationships.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("%w: %s: relationships must be a sequence", ErrInvalidSchema, d.Table)
		}
		for _, node := range d.Relationships.Content {
			var rd relationshipDoc
			if err := node.Decode(&rd); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSchema, d.Table, err)
			}
			entity.Relationships = append(entity.Relationships, &Relationship{
				Field:         rd.Field,
				MapsTo:        rd.MapsTo,
				WithField:     rd.WithField,
				WithFields:    rd.WithFields,
				WithOurField:  rd.WithOurField,
				InsertOnly:    rd.InsertOnly,
				CascadeDelete: rd.CascadeDelete,
			})
		}
	}

	if d.Validate != nil {
		validator, err := d.Validate.validator(d.Table)
		if err != nil {
			return nil, err
		}
		entity.Validator = validator
	}

	return entity, nil
}
