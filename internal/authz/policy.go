package authz

import (
	"fmt"
	"slices"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Wildcard is the policy key consulted for tables without their own rule.
const Wildcard = "*"

// Env is the environment policy expressions are evaluated against.
type Env struct {
	Principal  PrincipalEnv `expr:"principal"`
	Table      string       `expr:"table"`
	Capability string       `expr:"capability"`
}

// PrincipalEnv exposes the acting principal to expressions.
type PrincipalEnv struct {
	ID          string   `expr:"id"`
	Permissions []string `expr:"permissions"`
}

// Policy evaluates one boolean expression per table, for example
//
//	capability == "read" || "Customer-" + capability in principal.permissions
//
// A table with no rule falls back to the "*" rule; with neither, access
// is denied.
type Policy struct {
	programs map[string]*vm.Program
}

// NewPolicy compiles rules keyed by table name.
func NewPolicy(rules map[string]string) (*Policy, error) {
	p := &Policy{programs: make(map[string]*vm.Program, len(rules))}

	tables := make([]string, 0, len(rules))
	for table := range rules {
		tables = append(tables, table)
	}
	slices.Sort(tables)

	for _, table := range tables {
		program, err := expr.Compile(rules[table], expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("policy for %s: %w", table, err)
		}
		p.programs[table] = program
	}
	return p, nil
}

func (p *Policy) Verify(principal Principal, table string, c Capability) error {
	program, ok := p.programs[table]
	if !ok {
		program, ok = p.programs[Wildcard]
	}
	if !ok {
		return &DeniedError{Principal: principal.ID, Table: table, Capability: c}
	}

	env := Env{
		Principal:  PrincipalEnv{ID: principal.ID, Permissions: principal.Permissions},
		Table:      table,
		Capability: string(c),
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return fmt.Errorf("evaluate policy for %s: %w", table, err)
	}
	if allowed, _ := out.(bool); allowed {
		return nil
	}
	return &DeniedError{Principal: principal.ID, Table: table, Capability: c}
}
