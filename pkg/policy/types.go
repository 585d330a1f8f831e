package policy

import "time"

// Policy is one rego module checked against compiled output.
type Policy struct {
	// Name is the file name without the .rego extension.
	Name string `json:"name"`

	// Path is the file the policy was loaded from, empty for inline policies.
	Path string `json:"path,omitempty"`

	// Description is taken from the leading comment block of the module.
	Description string `json:"description,omitempty"`

	Rego     string    `json:"rego"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Input is the document exposed to rego as input.
type Input struct {
	// Output is the compiled configuration in its JSON form.
	Output interface{} `json:"output"`

	Build BuildInfo `json:"build"`
}

// BuildInfo describes the build that produced the output.
type BuildInfo struct {
	Entry        string   `json:"entry"`
	Format       string   `json:"format"`
	Macro        bool     `json:"macro"`
	Dependencies []string `json:"dependencies"`
}

// Violation is a single deny or warn message.
type Violation struct {
	Policy  string `json:"policy"`
	Message string `json:"message"`
}

// Result is the outcome of evaluating every loaded policy.
type Result struct {
	// Allowed is false when any policy produced a deny message.
	Allowed bool `json:"allowed"`

	Denials  []Violation `json:"denials,omitempty"`
	Warnings []Violation `json:"warnings,omitempty"`

	// Evaluated lists the policy names in evaluation order.
	Evaluated []string `json:"evaluated"`
}

// Messages returns the deny messages prefixed with their policy name.
func (r *Result) Messages() []string {
	out := make([]string, 0, len(r.Denials))
	for _, d := range r.Denials {
		out = append(out, d.Policy+": "+d.Message)
	}
	return out
}
