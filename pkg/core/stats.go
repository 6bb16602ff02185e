package core

// Arm names understood by the resolver. Synthesized workflow arms are
// named through SynthesizedArm.
const (
	ArmExact    = "exact"
	ArmFallback = "fallback"
)

// SynthesizedArm returns the router arm name for a deployed workflow.
func SynthesizedArm(fingerprint string) string {
	return "synthesized:" + fingerprint
}

// Arm is one selectable execution route with its Beta posterior.
type Arm struct {
	Name  string  `json:"name"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// ArmStats holds the registration-ordered arms for one normalized query
// pattern. Version supports optimistic concurrency in the stats store:
// every successful Put increments it, and a stale writer retries.
type ArmStats struct {
	Pattern string `json:"pattern"`
	Arms    []Arm  `json:"arms"`
	Version int64  `json:"version"`
}

// Arm returns a pointer to the named arm, or nil.
func (s *ArmStats) Arm(name string) *Arm {
	for i := range s.Arms {
		if s.Arms[i].Name == name {
			return &s.Arms[i]
		}
	}
	return nil
}

// Register appends a new arm with the given prior. Existing arms are
// untouched; re-registering a name is a no-op.
func (s *ArmStats) Register(name string, alpha, beta float64) bool {
	if s.Arm(name) != nil {
		return false
	}
	s.Arms = append(s.Arms, Arm{Name: name, Alpha: alpha, Beta: beta})
	return true
}

// Clone returns a deep copy, so read-modify-write cycles never alias
// the stored value.
func (s *ArmStats) Clone() *ArmStats {
	out := &ArmStats{Pattern: s.Pattern, Version: s.Version}
	out.Arms = make([]Arm, len(s.Arms))
	copy(out.Arms, s.Arms)
	return out
}
