package clansync

// Decision is the safety gate's verdict
type Decision int

const (
	Proceed Decision = iota
	Halt
)

func (d Decision) String() string {
	if d == Halt {
		return "halt"
	}
	return "proceed"
}

// DefaultMismatchThreshold is the largest mismatch count a gated run accepts
const DefaultMismatchThreshold = 15

// Decide halts when the mismatch count exceeds the threshold, unless forced.
// A count equal to the threshold proceeds.
func Decide(mismatches, threshold int, force bool) Decision {
	if mismatches > threshold && !force {
		return Halt
	}
	return Proceed
}
