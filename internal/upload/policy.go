package upload

// SizePolicy validates a declared upload size against a configured
// ceiling before any session state or disk I/O is created. A zero
// MaxBytes disables the ceiling.
type SizePolicy struct {
	MaxBytes uint64
}

// Admit checks a declared size against the ceiling.
func (p SizePolicy) Admit(declared uint64) error {
	if p.MaxBytes > 0 && declared > p.MaxBytes {
		return &SizeExceededError{Declared: declared, Limit: p.MaxBytes}
	}
	return nil
}
