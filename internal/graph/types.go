// Package graph implements the Block Catalogue / Block Graph (BG): the
// block-type catalogue and block-instance tables the Pipeline Evaluator
// and Invalidation Controller walk.
package graph

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind is the tagged-variant dispatch spec.md §4.2 and §9 describe: an
// enumeration of special block behaviors plus the General fallback that
// routes into the Executor.
type Kind int

const (
	KindGeneral Kind = iota
	KindDisabled
	KindInput
	KindLoadImage
	KindImagePreview
)

// Block type names that dispatch special behavior, per spec.md §3.
const (
	TypeNameInput        = "Input"
	TypeNameLoadImage    = "Load Image"
	TypeNameImagePreview = "Image Preview"
)

// BlockType is a row of blocks_catalogue: a block's behavior, independent
// of any particular instance's wiring or settings.
type BlockType struct {
	ID                int64          `db:"id"`
	Name              string         `db:"name"`
	Command           string         `db:"command"`
	ParameterTemplate string         `db:"parameter_template"`
	ParameterMappings []byte         `db:"parameter_mappings"` // nested JSON: field -> {rawValue -> mapped}
	GUIFields         []byte         `db:"gui_fields"`         // JSON array of field names, in order
	Outputs           sql.NullString `db:"outputs"`            // NULL marks the project's terminal block
}

// IsTerminal reports whether this type's catalogue row declares no
// outputs, making it the one terminal block of any project that uses it.
func (t *BlockType) IsTerminal() bool { return !t.Outputs.Valid }

// GUIFieldNames parses the ordered list of user-exposed setting names.
func (t *BlockType) GUIFieldNames() ([]string, error) {
	if len(t.GUIFields) == 0 {
		return nil, nil
	}
	var fields []string
	if err := json.Unmarshal(t.GUIFields, &fields); err != nil {
		return nil, fmt.Errorf("parse gui_fields: %w", err)
	}
	return fields, nil
}

// Mappings parses parameter_mappings: field name -> {raw value -> mapped
// value}. A missing field or missing raw value is not an error; the
// caller falls back to the raw value unchanged (spec.md §4.2 step d).
func (t *BlockType) Mappings() (map[string]map[string]string, error) {
	if len(t.ParameterMappings) == 0 {
		return map[string]map[string]string{}, nil
	}
	var mappings map[string]map[string]string
	if err := json.Unmarshal(t.ParameterMappings, &mappings); err != nil {
		return nil, fmt.Errorf("parse parameter_mappings: %w", err)
	}
	return mappings, nil
}

// Connections is the input-port-name -> upstream-block-instance-id
// mapping that forms a block instance's incoming edges.
type Connections map[string]int64

// SortedPorts returns the port names in lexicographic order, the
// ordering spec.md §5 uses for both recursive evaluation and for the
// resulting input_uuids_json cache key component.
func (c Connections) SortedPorts() []string {
	ports := make([]string, 0, len(c))
	for p := range c {
		ports = append(ports, p)
	}
	sort.Strings(ports)
	return ports
}

// First returns the upstream id of the lexicographically-first port, used
// by the disabled-block pass-through (spec.md §4.2 kind 1).
func (c Connections) First() (int64, bool) {
	ports := c.SortedPorts()
	if len(ports) == 0 {
		return 0, false
	}
	return c[ports[0]], true
}

// BlockInstance is a row of blocks: one node in a project's DAG.
type BlockInstance struct {
	ID              int64        `db:"id"`
	IDProject       int64        `db:"idproject"`
	IDBlock         int64        `db:"idblock"`
	ConnectionsJSON []byte       `db:"connections"`
	OutputValue     []byte       `db:"output_value"`
	Enabled         sql.NullBool `db:"enabled"`
}

// Connections parses the instance's incoming-edge mapping.
func (b *BlockInstance) Connections() (Connections, error) {
	if len(b.ConnectionsJSON) == 0 {
		return Connections{}, nil
	}
	var conns Connections
	if err := json.Unmarshal(b.ConnectionsJSON, &conns); err != nil {
		return nil, fmt.Errorf("parse connections: %w", err)
	}
	return conns, nil
}

// Settings returns the instance's settings object, as raw JSON, ready for
// cache-key canonicalization and parameter_mappings substitution.
func (b *BlockInstance) Settings() json.RawMessage {
	if len(b.OutputValue) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(b.OutputValue)
}

// SettingsMap parses Settings into a plain field->value map for parameter
// assembly (spec.md §4.2 step d).
func (b *BlockInstance) SettingsMap() (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(b.Settings(), &m); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return m, nil
}

// IsDisabled implements the tri-valued enabled semantics: absent or true
// means enabled, explicit false means disabled.
func (b *BlockInstance) IsDisabled() bool {
	return b.Enabled.Valid && !b.Enabled.Bool
}
