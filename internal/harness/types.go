package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Step     int      `json:"step"`
	Op       string   `json:"op"`
	Kind     string   `json:"kind,omitempty"`
	Outcome  string   `json:"outcome,omitempty"`
	Affected []string `json:"affected,omitempty"`
	Records  []string `json:"records,omitempty"`
	Degraded bool     `json:"degraded,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
