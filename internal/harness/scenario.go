package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of mutations and reads run against a
// fresh store, followed by assertions on the resulting state.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Schema is CUE source declaring the tables the scenario uses.
	Schema string `yaml:"schema"`

	// Principals maps the names used by steps to identities.
	Principals map[string]PrincipalSpec `yaml:"principals,omitempty"`

	// Steps run in order. Each is either a mutate or a read.
	Steps []Step `yaml:"steps"`

	// Assertions run after every step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// PrincipalSpec is a named identity with its permission strings.
type PrincipalSpec struct {
	ID          string   `yaml:"id"`
	Permissions []string `yaml:"permissions"`
}

// Step is one operation. Exactly one of Mutate and Read is set.
type Step struct {
	Mutate *MutateStep `yaml:"mutate,omitempty"`
	Read   *ReadStep   `yaml:"read,omitempty"`

	// Expect checks the outcome. A missing expect requires success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// PatchSpec is a patch id with its encoded delta written as YAML.
type PatchSpec struct {
	ID    string `yaml:"id"`
	Delta any    `yaml:"delta"`
}

// MutateStep submits one batch.
type MutateStep struct {
	Table    string      `yaml:"table"`
	ID       string      `yaml:"id"`
	As       string      `yaml:"as"`
	Form     string      `yaml:"form,omitempty"`
	Override bool        `yaml:"override,omitempty"`
	System   bool        `yaml:"system,omitempty"`
	Patches  []PatchSpec `yaml:"patches"`
}

// ReadStep reads one record.
type ReadStep struct {
	Table string `yaml:"table"`
	ID    string `yaml:"id"`
	As    string `yaml:"as"`
}

// Expect describes the outcome of a step. Unset fields are not checked.
type Expect struct {
	// Status is OK or an error code such as BAD_PATCH.
	Status string `yaml:"status"`

	Version    *int64   `yaml:"version,omitempty"`
	Applied    []string `yaml:"applied,omitempty"`
	Replayed   []string `yaml:"replayed,omitempty"`
	PatchIndex *int     `yaml:"patch_index,omitempty"`

	// Fields lists the paths an INVALID_RECORD error must name.
	Fields []string `yaml:"fields,omitempty"`

	// Record is matched as a subset of the returned record.
	Record map[string]any `yaml:"record,omitempty"`
}

// Assertion checks stored state once all steps have run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Table string `yaml:"table,omitempty"`
	ID    string `yaml:"id,omitempty"`

	// Expect is a record subset (final_record).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Version is the stored version (final_record).
	Version *int64 `yaml:"version,omitempty"`

	// Count is the number of history rows (history_count).
	Count int `yaml:"count,omitempty"`

	// Patches are ledger ids (ledger_contains, ledger_missing).
	Patches []string `yaml:"patches,omitempty"`
}

// Assertion types.
const (
	AssertFinalRecord    = "final_record"
	AssertRecordMissing  = "record_missing"
	AssertHistoryCount   = "history_count"
	AssertLedgerContains = "ledger_contains"
	AssertLedgerMissing  = "ledger_missing"
)

// StatusOK is the expected status of a step that succeeds.
const StatusOK = "OK"

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for name, p := range s.Principals {
		if p.ID == "" {
			return fmt.Errorf("principals.%s: id is required", name)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(s, i, step); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s *Scenario, i int, step Step) error {
	var table, id, as string
	switch {
	case step.Mutate != nil && step.Read != nil:
		return fmt.Errorf("steps[%d]: mutate and read are exclusive", i)
	case step.Mutate != nil:
		if len(step.Mutate.Patches) == 0 {
			return fmt.Errorf("steps[%d]: patches list is required", i)
		}
		table, id, as = step.Mutate.Table, step.Mutate.ID, step.Mutate.As
	case step.Read != nil:
		table, id, as = step.Read.Table, step.Read.ID, step.Read.As
	default:
		return fmt.Errorf("steps[%d]: one of mutate or read is required", i)
	}

	if table == "" || id == "" {
		return fmt.Errorf("steps[%d]: table and id are required", i)
	}
	if as != "" {
		if _, ok := s.Principals[as]; !ok {
			return fmt.Errorf("steps[%d]: unknown principal %q", i, as)
		}
	}
	if step.Expect != nil && step.Expect.Status == "" {
		return fmt.Errorf("steps[%d].expect: status is required", i)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertFinalRecord, AssertRecordMissing, AssertHistoryCount:
		if a.Table == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: table and id are required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertLedgerContains, AssertLedgerMissing:
		if len(a.Patches) == 0 {
			return fmt.Errorf("assertions[%d]: patches list is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
