package hostprobe

// ProbeError is the error kind named in spec.md §7. Per-tool absence is
// non-fatal and is absorbed into the capability set; Fatal is only set
// when the architecture itself could not be determined.
type ProbeError struct {
	Fatal   bool
	Message string
}

func (e *ProbeError) Error() string {
	return "probe: " + e.Message
}
