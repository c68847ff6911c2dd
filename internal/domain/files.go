package domain

// ReservedReasoningKey is a transient entry in a job's file map carrying
// model "thinking" text while a job runs. It is stripped before a file set
// is treated as final output.
const ReservedReasoningKey = "_reasoning"

// SubstantialFileThreshold is the minimum content length for a file to count
// as substantial existing content when choosing a generation strategy.
const SubstantialFileThreshold = 100

// FileSet is a project's virtual filesystem: path -> content.
type FileSet map[string]string

// Clone returns an independent copy of the file set.
func (f FileSet) Clone() FileSet {
	out := make(FileSet, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// WithoutReserved returns a copy with the reasoning key removed.
func (f FileSet) WithoutReserved() FileSet {
	out := make(FileSet, len(f))
	for k, v := range f {
		if k == ReservedReasoningKey {
			continue
		}
		out[k] = v
	}
	return out
}

// HasSubstantialContent reports whether at least one non-reserved file is
// longer than the substantial-content threshold. It gates the choice between
// new-site generation and modification of an existing site.
func (f FileSet) HasSubstantialContent() bool {
	for k, v := range f {
		if k == ReservedReasoningKey {
			continue
		}
		if len(v) > SubstantialFileThreshold {
			return true
		}
	}
	return false
}

// Merge overlays updates onto the receiver: existing files not present in
// updates are carried over, updates win on conflicts. The reserved key is
// never copied into the result.
func (f FileSet) Merge(updates FileSet) FileSet {
	out := f.WithoutReserved()
	for k, v := range updates {
		if k == ReservedReasoningKey {
			continue
		}
		out[k] = v
	}
	return out
}
