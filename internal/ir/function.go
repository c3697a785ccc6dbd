package ir

// CodeLocation is the source of a function's deployment package: a directory
// plus optional auxiliary files layered into the archive root.
type CodeLocation struct {
	Dir    string   `json:"dir" pkl:"dir"`
	Extras []string `json:"extras,omitempty" pkl:"extras"`
}

// NewCodeLocation builds a CodeLocation from the list form used in
// configuration, where element 0 is the directory.
func NewCodeLocation(paths []string) CodeLocation {
	if len(paths) == 0 {
		return CodeLocation{}
	}
	loc := CodeLocation{Dir: paths[0]}
	if len(paths) > 1 {
		loc.Extras = append([]string(nil), paths[1:]...)
	}
	return loc
}

// Paths returns the list form of the location.
func (c CodeLocation) Paths() []string {
	return append([]string{c.Dir}, c.Extras...)
}

// IdentityReference is the execution role a function assumes.
type IdentityReference struct {
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

// ResourceSpec is the desired configuration of a single function.
type ResourceSpec struct {
	// ID is the stable record key. It defaults to Name, so renaming a
	// function that has an explicit ID replaces it under the same record.
	ID string `json:"id,omitempty"`

	Identity    *IdentityReference `json:"identity,omitempty"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Handler     string             `json:"handler"`
	Code        CodeLocation       `json:"code"`
	Runtime     string             `json:"runtime"`
	MemorySize  int32              `json:"memorySize"`
	Timeout     int32              `json:"timeout"`
	Environment map[string]string  `json:"environment,omitempty"`
	Tags        map[string]string  `json:"tags,omitempty"`
	Excludes    []string           `json:"excludes,omitempty"`

	// Fingerprint is recomputed from Code before every comparison.
	Fingerprint string `json:"fingerprint"`
}

// Key returns the record key for the function.
func (s *ResourceSpec) Key() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Name
}

// Clone returns a deep copy.
func (s *ResourceSpec) Clone() *ResourceSpec {
	if s == nil {
		return nil
	}
	c := *s
	if s.Identity != nil {
		id := *s.Identity
		c.Identity = &id
	}
	c.Code.Extras = append([]string(nil), s.Code.Extras...)
	c.Excludes = append([]string(nil), s.Excludes...)
	c.Environment = cloneMap(s.Environment)
	c.Tags = cloneMap(s.Tags)
	return &c
}

// PriorInstance is the last successfully applied state of a function.
type PriorInstance struct {
	ResourceSpec

	RemoteID  string `json:"remoteId"`
	Version   string `json:"version,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Clone returns a deep copy of the record.
func (p *PriorInstance) Clone() *PriorInstance {
	if p == nil {
		return nil
	}
	c := *p
	c.ResourceSpec = *p.ResourceSpec.Clone()
	return &c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
