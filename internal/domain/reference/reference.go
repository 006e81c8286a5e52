// Package reference serves the clinic's static decision-support tables:
// systemic risk protocols, condition-based prescription templates and the
// root canal layout per tooth.
package reference

import (
	"embed"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Pair is one labelled value inside a protocol section, e.g. a vital limit.
type Pair struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Section is one heading of a risk protocol. Exactly one of Text, Items
// or Pairs is set.
type Section struct {
	Key   string   `json:"key"`
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items,omitempty"`
	Pairs []Pair   `json:"pairs,omitempty"`
}

// Protocol is the guidance for one systemic condition. Sections keep the
// order they are authored in.
type Protocol struct {
	System    string    `json:"system"`
	Condition string    `json:"condition"`
	Summary   string    `json:"summary"`
	Sections  []Section `json:"sections"`
}

func (p *Protocol) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("protocol: line %d: expected mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		sec := Section{Key: key}
		switch val.Kind {
		case yaml.ScalarNode:
			if key == "summary" {
				p.Summary = val.Value
				continue
			}
			sec.Text = val.Value
		case yaml.SequenceNode:
			if err := val.Decode(&sec.Items); err != nil {
				return fmt.Errorf("protocol %s: %w", key, err)
			}
		case yaml.MappingNode:
			for j := 0; j+1 < len(val.Content); j += 2 {
				sec.Pairs = append(sec.Pairs, Pair{Label: val.Content[j].Value, Value: val.Content[j+1].Value})
			}
		default:
			return fmt.Errorf("protocol %s: line %d: unsupported value", key, val.Line)
		}
		p.Sections = append(p.Sections, sec)
	}
	return nil
}

// DrugOrder is a prescription line template.
type DrugOrder struct {
	DosageForm string `yaml:"dosage_form" json:"dosage_form"`
	DrugName   string `yaml:"drug_name" json:"drug_name"`
	Strength   string `yaml:"strength" json:"strength"`
	Quantity   string `yaml:"quantity" json:"quantity"`
	Frequency  string `yaml:"frequency" json:"frequency"`
	Duration   string `yaml:"duration" json:"duration"`
}

// ConditionGroup lists condition protocol labels under one discipline.
type ConditionGroup struct {
	Group      string   `yaml:"group" json:"group"`
	Conditions []string `yaml:"conditions" json:"conditions"`
}

type system struct {
	name       string
	conditions []*Protocol
	byName     map[string]*Protocol
}

// Provider holds the parsed tables. It is read-only after New and safe for
// concurrent use.
type Provider struct {
	systems    []*system
	bySystem   map[string]*system
	conditions map[string][]DrugOrder
	groups     []ConditionGroup
}

// New parses the embedded tables.
func New() (*Provider, error) {
	p := &Provider{bySystem: map[string]*system{}}
	if err := p.loadRisk("data/risk_protocols.yaml"); err != nil {
		return nil, err
	}
	if err := decodeFile("data/condition_protocols.yaml", &p.conditions); err != nil {
		return nil, err
	}
	if err := decodeFile("data/condition_groups.yaml", &p.groups); err != nil {
		return nil, err
	}
	for _, g := range p.groups {
		for _, label := range g.Conditions {
			if _, ok := p.conditions[label]; !ok {
				return nil, fmt.Errorf("reference: group %q names unknown condition %q", g.Group, label)
			}
		}
	}
	return p, nil
}

// MustNew is New for process start-up and tests.
func MustNew() *Provider {
	p, err := New()
	if err != nil {
		panic(err)
	}
	return p
}

func decodeFile(name string, dst any) error {
	raw, err := dataFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("reference: read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("reference: parse %s: %w", name, err)
	}
	return nil
}

// loadRisk walks the document node so systems and conditions keep their
// authored order.
func (p *Provider) loadRisk(name string) error {
	var doc yaml.Node
	if err := decodeFile(name, &doc); err != nil {
		return err
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("reference: %s: expected a mapping of systems", name)
	}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		sys := &system{name: root.Content[i].Value, byName: map[string]*Protocol{}}
		conds := root.Content[i+1]
		if conds.Kind != yaml.MappingNode {
			return fmt.Errorf("reference: %s: system %q: expected a mapping", name, sys.name)
		}
		for j := 0; j+1 < len(conds.Content); j += 2 {
			prot := &Protocol{System: sys.name, Condition: conds.Content[j].Value}
			if err := conds.Content[j+1].Decode(prot); err != nil {
				return fmt.Errorf("reference: %s: %s/%s: %w", name, sys.name, prot.Condition, err)
			}
			sys.conditions = append(sys.conditions, prot)
			sys.byName[prot.Condition] = prot
		}
		p.systems = append(p.systems, sys)
		p.bySystem[sys.name] = sys
	}
	return nil
}

// LookupRiskProtocol returns the guidance for a condition within a body
// system.
func (p *Provider) LookupRiskProtocol(systemName, condition string) (*Protocol, error) {
	sys, ok := p.bySystem[systemName]
	if !ok {
		return nil, apperr.NotFound("risk system", systemName)
	}
	prot, ok := sys.byName[condition]
	if !ok {
		return nil, apperr.NotFound("risk protocol", systemName+"/"+condition)
	}
	return prot, nil
}

// Systems lists the body systems in authored order.
func (p *Provider) Systems() []string {
	out := make([]string, 0, len(p.systems))
	for _, s := range p.systems {
		out = append(out, s.name)
	}
	return out
}

// Conditions lists the conditions of a system. Unknown systems yield
// NotFound.
func (p *Provider) Conditions(systemName string) ([]string, error) {
	sys, ok := p.bySystem[systemName]
	if !ok {
		return nil, apperr.NotFound("risk system", systemName)
	}
	out := make([]string, 0, len(sys.conditions))
	for _, c := range sys.conditions {
		out = append(out, c.Condition)
	}
	return out, nil
}

// LookupConditionProtocol returns a copy of the drug templates for a
// condition label. Unknown labels yield an empty list so the prescription
// form starts blank.
func (p *Provider) LookupConditionProtocol(label string) []DrugOrder {
	orders := p.conditions[label]
	out := make([]DrugOrder, len(orders))
	copy(out, orders)
	return out
}

func (p *Provider) ConditionGroups() []ConditionGroup {
	out := make([]ConditionGroup, len(p.groups))
	copy(out, p.groups)
	return out
}

var defaultCanals = []string{"M"}

// LookupCanals returns the canal labels expected for a tooth code such as
// "UR6" or "LLC". The first two characters name the quadrant; the rest is
// a permanent tooth number 1-8 or a primary tooth letter A-E.
func LookupCanals(tooth string) []string {
	if len(tooth) < 3 {
		return canals(defaultCanals)
	}
	num := tooth[2:]
	switch num {
	case "A", "B", "C", "D", "E":
		return canals(defaultCanals)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return canals(defaultCanals)
	}
	switch n {
	case 1, 2, 3:
		return []string{"C"}
	case 4:
		return []string{"B", "P"}
	case 5:
		return []string{"C"}
	case 6:
		return []string{"MB1", "MB2", "DB", "P"}
	case 7, 8:
		return []string{"MB", "DB", "P"}
	default:
		return canals(defaultCanals)
	}
}

func canals(src []string) []string {
	return append([]string(nil), src...)
}
