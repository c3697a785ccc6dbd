package ir

import "sort"

// State represents the persistent state.
type State struct {
	Version   int                       `json:"version"`
	Serial    int                       `json:"serial"`
	Lineage   string                    `json:"lineage"`
	Instances map[string]*PriorInstance `json:"instances"`
}

// NewState returns an empty state document.
func NewState() *State {
	return &State{
		Version:   1,
		Instances: make(map[string]*PriorInstance),
	}
}

// Get returns the record for key, or nil.
func (s *State) Get(key string) *PriorInstance {
	if s == nil || s.Instances == nil {
		return nil
	}
	return s.Instances[key]
}

// Find returns the record for key, falling back to the record whose
// function name is key.
func (s *State) Find(key string) *PriorInstance {
	if inst := s.Get(key); inst != nil {
		return inst
	}
	if s == nil {
		return nil
	}
	for _, inst := range s.Instances {
		if inst.Name == key {
			return inst
		}
	}
	return nil
}

// Put stores a record under its key.
func (s *State) Put(inst *PriorInstance) {
	if s.Instances == nil {
		s.Instances = make(map[string]*PriorInstance)
	}
	s.Instances[inst.Key()] = inst
}

// Delete drops the record for key.
func (s *State) Delete(key string) {
	delete(s.Instances, key)
}

// Names returns the record keys in sorted order.
func (s *State) Names() []string {
	names := make([]string, 0, len(s.Instances))
	for n := range s.Instances {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
