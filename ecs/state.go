package ecs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ErrUnknownComponent is returned by ImportState when the state names a
// component that is not registered.
var ErrUnknownComponent = errors.New("unknown component")

// worldState is the exported layout of a Storage:
//
//	{"entities":[{"components":{"game.Position":{"X":1,"Y":2}}}],
//	 "singletons":{"game.Clock":{"Tick":7}}}
type worldState struct {
	Entities   []entityState              `json:"entities"`
	Singletons map[string]json.RawMessage `json:"singletons"`
}

type entityState struct {
	Components map[string]json.RawMessage `json:"components"`
}

// ExportState returns a plain value (maps, slices, strings, bools, nil and
// json.Number) describing every entity and every registered singleton.
//
// Entities are ordered by archetype, using the sorted component names of each
// archetype, and then by slot. Exporting an unchanged storage therefore
// always yields the same value. Entity ids are not exported; they are only
// meaningful inside the process that created them. Singletons whose type is
// not registered are considered transient and are skipped.
func (s *Storage) ExportState() (any, error) {
	state := worldState{
		Entities:   []entityState{},
		Singletons: make(map[string]json.RawMessage),
	}

	archetypes, err := s.sortedArchetypes()
	if err != nil {
		return nil, err
	}

	for _, entry := range archetypes {
		archetype := entry.archetype
		for id := range archetype.Iter() {
			components := make(map[string]json.RawMessage, len(entry.names))
			for i, storage := range archetype.storages {
				data, err := json.Marshal(storage.Get(int(id.Index())))
				if err != nil {
					return nil, fmt.Errorf("ecs: export %s of entity %d: %w", entry.names[i], id, err)
				}
				components[entry.names[i]] = data
			}
			state.Entities = append(state.Entities, entityState{Components: components})
		}
	}

	for typ, singleton := range s.singletons {
		name, ok := s.registry.NameOf(typ)
		if !ok {
			continue
		}
		data, err := json.Marshal(singleton.value.Interface())
		if err != nil {
			return nil, fmt.Errorf("ecs: export singleton %s: %w", name, err)
		}
		state.Singletons[name] = data
	}

	return toPlain(state)
}

// ImportState replaces the storage contents with the given exported state.
//
// The whole state is decoded and validated before anything is touched, so a
// malformed state or an unknown component leaves the storage unchanged. On
// success all entities are replaced, outstanding EntityRefs are invalidated,
// registered singletons are overwritten in place (existing Singleton
// accessors keep working) and registered singletons missing from the state
// are removed. Entities receive new ids.
func (s *Storage) ImportState(state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("ecs: encode state: %w", err)
	}

	var ws worldState
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ws); err != nil {
		return fmt.Errorf("ecs: decode state: %w", err)
	}

	entities := make([][]any, 0, len(ws.Entities))
	for i, entity := range ws.Entities {
		if len(entity.Components) == 0 {
			return fmt.Errorf("ecs: entity %d has no components", i)
		}
		components := make([]any, 0, len(entity.Components))
		for name, raw := range entity.Components {
			value, err := s.registry.decodeComponent(name, raw)
			if err != nil {
				return fmt.Errorf("ecs: entity %d: %w", i, err)
			}
			components = append(components, value)
		}
		entities = append(entities, components)
	}

	singletons := make(map[reflect.Type]any, len(ws.Singletons))
	for name, raw := range ws.Singletons {
		value, err := s.registry.decodeComponent(name, raw)
		if err != nil {
			return fmt.Errorf("ecs: singleton: %w", err)
		}
		typ, _ := s.registry.TypeOf(name)
		singletons[typ] = value
	}

	s.dropArchetypes()
	for _, components := range entities {
		s.Spawn(components...)
	}

	for typ := range s.singletons {
		if _, registered := s.registry.NameOf(typ); !registered {
			continue
		}
		if _, keep := singletons[typ]; !keep {
			s.RemoveSingleton(typ)
		}
	}
	for _, value := range singletons {
		s.AddSingleton(value)
	}

	return nil
}

// decodeComponent decodes raw JSON into a value of the component registered as name.
func (r *ComponentRegistry) decodeComponent(name string, raw json.RawMessage) (any, error) {
	typ, ok := r.names[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, name)
	}
	value, err := r.types[typ].decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return value, nil
}

type namedArchetype struct {
	archetype *Archetype
	names     []string
	key       string
}

// sortedArchetypes returns the archetypes ordered by their component names.
func (s *Storage) sortedArchetypes() ([]namedArchetype, error) {
	result := make([]namedArchetype, 0, len(s.archetypes))
	for _, archetype := range s.archetypes {
		names := make([]string, len(archetype.types))
		for i, typ := range archetype.types {
			name, ok := s.registry.NameOf(typ)
			if !ok {
				return nil, fmt.Errorf("ecs: component type %s is not registered", typ)
			}
			names[i] = name
		}
		sorted := append([]string(nil), names...)
		sort.Strings(sorted)
		result = append(result, namedArchetype{
			archetype: archetype,
			names:     names,
			key:       strings.Join(sorted, ","),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].key < result[j].key
	})
	return result, nil
}

// toPlain converts v to its generic JSON form. Numbers are kept as
// json.Number so integers survive the round trip exactly.
func toPlain(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ecs: encode state: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var plain any
	if err := dec.Decode(&plain); err != nil {
		return nil, fmt.Errorf("ecs: encode state: %w", err)
	}
	return plain, nil
}
