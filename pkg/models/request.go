package models

// MemberMappedArgument overrides the general arguments for specific members.
type MemberMappedArgument struct {
	Default   any            `cbor:"default"   json:"default"`
	PerMember map[string]any `cbor:"per_member" json:"per_member"`
}

// ArgumentsFor returns the member override, falling back to the default.
func (m *MemberMappedArgument) ArgumentsFor(memberID string) any {
	if m == nil {
		return nil
	}

	if v, ok := m.PerMember[memberID]; ok {
		return v
	}

	return m.Default
}

// FunctionRef names a registered function by ID or carries one inline.
// Exactly one of the two is set on a decoded request.
type FunctionRef struct {
	ID     string
	Inline Function
}

func (r FunctionRef) IsZero() bool {
	return r.ID == "" && r.Inline == nil
}

func (r FunctionRef) IsInline() bool {
	return r.Inline != nil
}

func (r FunctionRef) String() string {
	if r.Inline != nil {
		return r.Inline.Descriptor().ID
	}

	return r.ID
}

// ExecutionRequest is the decoded execute-region-function command.
type ExecutionRequest struct {
	RegionName      string
	Function        FunctionRef
	Args            any
	MemberArgs      *MemberMappedArgument
	State           FunctionState
	HasResult       bool
	TimeoutMillis   int32
	BucketsAsFilter bool
	IsReExecute     bool
	// Filter with zero entries means no filter, not an empty filter.
	Filter          IDSet
	ExcludedMembers IDSet
}
