package ir

// StepKind names one stage of the enforcement sequence.
type StepKind string

// The fixed enforcement order for ordinary callables.
const (
	StepInvariantsBefore StepKind = "invariants_before"
	StepPreconditions    StepKind = "preconditions"
	StepCaptureOld       StepKind = "capture_old"
	StepInvoke           StepKind = "invoke"
	StepPostconditions   StepKind = "postconditions"
	StepInvariantsAfter  StepKind = "invariants_after"
)

// Argument is one entry of the forwarding shape.
type Argument struct {
	Name   string `json:"name"`
	ByName bool   `json:"by_name,omitempty"` // forwarded as name: value rather than positionally
}

// Signature is the reconstructed parameter contract of a wrapper.
type Signature struct {
	Declaration []Param     `json:"declaration"` // declaration shape, wrapper-facing order
	Forwarding  []Argument  `json:"forwarding"`  // call shape used to reach the implementation
	TypeParams  []TypeParam `json:"type_params,omitempty"`
}

// Check is one clause as it will be evaluated by the wrapper.
type Check struct {
	Kind      ClauseKind `json:"kind"`
	Source    string     `json:"source"`    // declared text
	Rewritten string     `json:"rewritten"` // text evaluated at enforcement time
	Message   string     `json:"message"`
}

// Capture is one old() snapshot taken before invocation.
type Capture struct {
	Field    string `json:"field"`
	Type     string `json:"type"`
	Accessor bool   `json:"accessor,omitempty"`
}

// Step is one stage of the enforcement sequence with the checks it runs.
type Step struct {
	Kind   StepKind `json:"kind"`
	Checks []Check  `json:"checks,omitempty"`
}

// Descriptor is the in-memory description of one enforcement wrapper.
//
// Descriptors are produced deterministically: generating twice from the same
// declarations yields descriptors with identical canonical encodings.
type Descriptor struct {
	Type           string    `json:"type,omitempty"` // empty for free functions
	Receiver       string    `json:"receiver,omitempty"`
	Implementation string    `json:"implementation"` // internal name of the wrapped callable
	PublicName     string    `json:"public_name"`
	Role           Role      `json:"role"`
	Async          bool      `json:"async,omitempty"`
	Result         string    `json:"result,omitempty"`
	Signature      Signature `json:"signature"`
	Fields         []Field   `json:"fields,omitempty"` // readable members exposed to conditions
	Captures       []Capture `json:"captures,omitempty"`
	Steps          []Step    `json:"steps"`
}

// QualifiedName returns Type.PublicName (or the bare name for free functions).
func (d *Descriptor) QualifiedName() string {
	return QualifiedName(d.Type, d.PublicName)
}

// Step returns the step of the given kind, if present.
func (d *Descriptor) Step(kind StepKind) (Step, bool) {
	for _, s := range d.Steps {
		if s.Kind == kind {
			return s, true
		}
	}
	return Step{}, false
}

// Checks returns the checks of the given step kind, or nil.
func (d *Descriptor) Checks(kind StepKind) []Check {
	s, _ := d.Step(kind)
	return s.Checks
}

// canonicalMap converts the descriptor to the generic form accepted by MarshalCanonical.
func (d *Descriptor) canonicalMap() map[string]any {
	decl := make([]any, len(d.Signature.Declaration))
	for i, p := range d.Signature.Declaration {
		decl[i] = map[string]any{
			"name":    p.Name,
			"type":    p.Type,
			"kind":    string(p.Kind),
			"default": p.Default,
		}
	}
	fwd := make([]any, len(d.Signature.Forwarding))
	for i, a := range d.Signature.Forwarding {
		fwd[i] = map[string]any{"name": a.Name, "by_name": a.ByName}
	}
	tps := make([]any, len(d.Signature.TypeParams))
	for i, tp := range d.Signature.TypeParams {
		tps[i] = map[string]any{"name": tp.Name, "constraint": tp.Constraint}
	}
	fields := make([]any, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = map[string]any{"name": f.Name, "type": f.Type, "accessor": f.Accessor}
	}
	captures := make([]any, len(d.Captures))
	for i, c := range d.Captures {
		captures[i] = map[string]any{"field": c.Field, "type": c.Type, "accessor": c.Accessor}
	}
	steps := make([]any, len(d.Steps))
	for i, s := range d.Steps {
		checks := make([]any, len(s.Checks))
		for j, c := range s.Checks {
			checks[j] = map[string]any{
				"kind":      string(c.Kind),
				"source":    c.Source,
				"rewritten": c.Rewritten,
				"message":   c.Message,
			}
		}
		steps[i] = map[string]any{"kind": string(s.Kind), "checks": checks}
	}

	return map[string]any{
		"type":           d.Type,
		"receiver":       d.Receiver,
		"implementation": d.Implementation,
		"public_name":    d.PublicName,
		"role":           string(d.Role),
		"async":          d.Async,
		"result":         d.Result,
		"signature": map[string]any{
			"declaration": decl,
			"forwarding":  fwd,
			"type_params": tps,
		},
		"fields":   fields,
		"captures": captures,
		"steps":    steps,
	}
}
