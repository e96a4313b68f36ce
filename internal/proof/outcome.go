package proof

// Kind classifies the result of a single fetch attempt.
type Kind int

const (
	// KindFound means the hub returned at least one proof; Outcome.Record is set.
	KindFound Kind = iota
	// KindEmpty means the hub answered but the fid has no proof. Not an error.
	KindEmpty
	// KindTransient covers timeouts, connection errors, non-2xx statuses and
	// unparseable bodies. The attempt may be retried.
	KindTransient
	// KindInvalid means the body parsed but the first proof is unusable.
	// Retrying will not help.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindFound:
		return "found"
	case KindEmpty:
		return "empty"
	case KindTransient:
		return "transient"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Outcome is the result of one attempt. Status is the HTTP status code, or 0
// when no response was received.
type Outcome struct {
	Kind   Kind
	Record AddressRecord
	Status int
	Err    error
}

// Retryable reports whether another attempt could change the result.
func (o Outcome) Retryable() bool {
	return o.Kind == KindTransient
}
