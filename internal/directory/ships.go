// Package directory resolves character names and ship types to ids.
package directory

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Ships is the static ship catalog: type id <-> name and type -> class
// (group). It satisfies analysis.ShipCatalog.
type Ships struct {
	typeName   map[int64]string
	typeByName map[string]int64
	typeGroup  map[int64]int64
	groupName  map[int64]string
	groupByKey map[string]int64
	groupTypes map[int64][]int64
}

// NewShips returns an empty catalog.
func NewShips() *Ships {
	return &Ships{
		typeName:   make(map[int64]string),
		typeByName: make(map[string]int64),
		typeGroup:  make(map[int64]int64),
		groupName:  make(map[int64]string),
		groupByKey: make(map[string]int64),
		groupTypes: make(map[int64][]int64),
	}
}

// LoadShips reads a catalog CSV with a header row followed by
// type_id,group_id,type_name,group_name records.
func LoadShips(path string) (*Ships, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ship catalog: %w", err)
	}
	defer f.Close()
	s, err := ReadShips(f)
	if err != nil {
		return nil, fmt.Errorf("read ship catalog %s: %w", path, err)
	}
	slog.Info("loaded ship catalog", "component", "directory", "path", path, "types", len(s.typeName))
	return s, nil
}

// ReadShips parses catalog CSV from r.
func ReadShips(r io.Reader) (*Ships, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	s := NewShips()
	header := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		if header {
			header = false
			continue
		}
		typeID, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("type id %q: %w", rec[0], err)
		}
		groupID, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("group id %q: %w", rec[1], err)
		}
		s.Add(typeID, groupID, strings.TrimSpace(rec[2]), strings.TrimSpace(rec[3]))
	}
}

// Add registers one ship type.
func (s *Ships) Add(typeID, groupID int64, typeName, groupName string) {
	s.typeName[typeID] = typeName
	s.typeByName[strings.ToLower(typeName)] = typeID
	s.typeGroup[typeID] = groupID
	s.groupName[groupID] = groupName
	s.groupByKey[strings.ToLower(groupName)] = groupID
	s.groupTypes[groupID] = append(s.groupTypes[groupID], typeID)
}

// TypeName returns the ship name for a type id.
func (s *Ships) TypeName(typeID int64) (string, bool) {
	n, ok := s.typeName[typeID]
	return n, ok
}

// TypeID looks a ship up by case-insensitive name.
func (s *Ships) TypeID(name string) (int64, bool) {
	id, ok := s.typeByName[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

// GroupID returns the class id of a ship type.
func (s *Ships) GroupID(typeID int64) (int64, bool) {
	g, ok := s.typeGroup[typeID]
	return g, ok
}

// GroupName returns the class name of a group id.
func (s *Ships) GroupName(groupID int64) (string, bool) {
	n, ok := s.groupName[groupID]
	return n, ok
}

// GroupByName looks a class up by case-insensitive name.
func (s *Ships) GroupByName(name string) (int64, bool) {
	id, ok := s.groupByKey[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

// TypesInGroup lists the ship types of a class.
func (s *Ships) TypesInGroup(groupID int64) []int64 {
	return append([]int64(nil), s.groupTypes[groupID]...)
}

// ResolveTypes turns ship names, class names or numeric ids into type ids.
// A class name expands to every ship of that class.
func (s *Ships) ResolveTypes(items []string) ([]int64, error) {
	var out []int64
	for _, item := range items {
		if id, err := strconv.ParseInt(strings.TrimSpace(item), 10, 64); err == nil {
			out = append(out, id)
			continue
		}
		if id, ok := s.TypeID(item); ok {
			out = append(out, id)
			continue
		}
		if gid, ok := s.GroupByName(item); ok {
			out = append(out, s.TypesInGroup(gid)...)
			continue
		}
		return nil, fmt.Errorf("ship type or class %q not in catalog", item)
	}
	return out, nil
}
