package harness

// TraceEvent records the outcome of one step.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Op     string `json:"op"` // "mutate" or "read"
	Table  string `json:"table"`
	ID     string `json:"id"`
	Status string `json:"status"`

	// Set on success only.
	Version  *int64   `json:"version,omitempty"`
	Applied  []string `json:"applied,omitempty"`
	Replayed []string `json:"replayed,omitempty"`

	// -1 unless the error names a patch.
	PatchIndex int `json:"patch_index"`
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}
