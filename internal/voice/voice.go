// Package voice holds named channel parameter presets for the MML "@"
// command. The built-in presets are read from an embedded YAML document and
// further documents can be merged on top.
package voice

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/siopm-go/internal/siopm"
)

//go:embed presets.yml
var defaultPresetsYaml []byte

// ErrPreset reports a malformed preset document.
var ErrPreset = errors.New("voice: bad preset")

type preset struct {
	ID      string    `yaml:"id"`
	Program *int      `yaml:"program"`
	Params  yaml.Node `yaml:"params"`
}

type document struct {
	Voices []preset `yaml:"voices"`
}

// Table maps preset ids, and optionally program numbers, to voices.
type Table struct {
	voices   map[string]*siopm.ChannelParam
	programs map[int]string
}

// New returns an empty table.
func New() *Table {
	return &Table{
		voices:   make(map[string]*siopm.ChannelParam),
		programs: make(map[int]string),
	}
}

// Default returns a table holding the built-in presets.
func Default() *Table {
	t := New()
	if err := t.load(defaultPresetsYaml); err != nil {
		panic(fmt.Errorf("failed to load built-in voices: %w", err))
	}
	return t
}

// LoadYAML merges the presets of a YAML document into the table. Presets
// with an existing id replace the old ones.
func (t *Table) LoadYAML(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return t.load(data)
}

func (t *Table) load(data []byte) error {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrPreset, err)
	}
	parsed := make([]*siopm.ChannelParam, len(doc.Voices))
	for i, v := range doc.Voices {
		if v.ID == "" {
			return fmt.Errorf("%w: voice %d has no id", ErrPreset, i)
		}
		p, err := decodeParam(&v.Params)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrPreset, v.ID, err)
		}
		parsed[i] = p
	}
	for i, v := range doc.Voices {
		t.Set(v.ID, parsed[i])
		if v.Program != nil {
			t.programs[*v.Program] = v.ID
		}
	}
	return nil
}

// decodeParam fills a parameter set starting from the chip defaults, so
// keys missing from the document keep their default values. Operators are
// decoded one by one for the same reason.
func decodeParam(n *yaml.Node) (*siopm.ChannelParam, error) {
	p := siopm.NewChannelParam()
	if n.Kind == 0 {
		return p, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: params must be a mapping", n.Line)
	}
	rest := &yaml.Node{Kind: yaml.MappingNode, Tag: n.Tag}
	var ops *yaml.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "operators" {
			ops = n.Content[i+1]
			continue
		}
		rest.Content = append(rest.Content, n.Content[i], n.Content[i+1])
	}
	if err := rest.Decode(p); err != nil {
		return nil, err
	}
	if ops != nil {
		if ops.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("line %d: operators must be a list", ops.Line)
		}
		if len(ops.Content) > 4 {
			return nil, fmt.Errorf("line %d: at most 4 operators", ops.Line)
		}
		for i, on := range ops.Content {
			if err := on.Decode(p.Operator(i)); err != nil {
				return nil, err
			}
		}
	}
	if p.OpCount < 1 || p.OpCount > 4 {
		return nil, fmt.Errorf("operator count %d outside [1, 4]", p.OpCount)
	}
	return p, nil
}

// Set stores p under id.
func (t *Table) Set(id string, p *siopm.ChannelParam) { t.voices[id] = p }

// Get returns the preset stored under id. The result is shared; clone it
// before changing it.
func (t *Table) Get(id string) (*siopm.ChannelParam, bool) {
	p, ok := t.voices[id]
	return p, ok
}

// Program returns the preset bound to a program number.
func (t *Table) Program(n int) (*siopm.ChannelParam, bool) {
	id, ok := t.programs[n]
	if !ok {
		return nil, false
	}
	return t.Get(id)
}

// IDs returns the preset ids in sorted order.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.voices))
	for id := range t.voices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of presets.
func (t *Table) Len() int { return len(t.voices) }
