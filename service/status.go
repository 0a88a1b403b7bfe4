package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies which variant a [Status] holds.
//
// Kind is a string type so it serializes as a readable token in JSON and logs.
type Kind string

const (
	// KindUp indicates the service answered; the status carries a latency.
	KindUp Kind = "up"

	// KindDown indicates the service failed its check; the status carries a reason.
	KindDown Kind = "down"

	// KindUnknown indicates the check could not determine the state; the
	// status carries a reason.
	KindUnknown Kind = "unknown"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Status is one liveness observation of a service.
//
// A Status holds exactly one variant: up with a latency, or down/unknown with
// a reason. Construct it with [Up], [Down] or [Unknown]; the zero value is not
// a valid Status. Status is a value type and immutable once created.
type Status struct {
	kind    Kind
	latency time.Duration
	reason  string
}

// Up returns an up status with the given latency.
func Up(latency time.Duration) Status {
	return Status{kind: KindUp, latency: latency}
}

// Down returns a down status with the given reason.
func Down(reason string) Status {
	return Status{kind: KindDown, reason: reason}
}

// Unknown returns an unknown status with the given reason.
func Unknown(reason string) Status {
	return Status{kind: KindUnknown, reason: reason}
}

// Kind returns the variant of the status.
func (s Status) Kind() Kind {
	return s.kind
}

// Latency returns the measured latency. Zero unless the status is up.
func (s Status) Latency() time.Duration {
	return s.latency
}

// Reason returns the failure reason. Empty when the status is up.
func (s Status) Reason() string {
	return s.reason
}

// IsUp reports whether the status is the up variant.
func (s Status) IsUp() bool {
	return s.kind == KindUp
}

// Validate reports whether the status is a well-formed variant.
func (s Status) Validate() error {
	switch s.kind {
	case KindUp:
		if s.latency < 0 {
			return fmt.Errorf("latency cannot be negative, got %s", s.latency)
		}
	case KindDown, KindUnknown:
	case "":
		return errors.New("status kind is required")
	default:
		return fmt.Errorf("unknown status kind %q", s.kind)
	}
	return nil
}

// String implements fmt.Stringer, e.g. "up (12ms)" or "down: connection refused".
func (s Status) String() string {
	if s.kind == KindUp {
		return fmt.Sprintf("up (%s)", s.latency)
	}
	if s.reason == "" {
		return string(s.kind)
	}
	return fmt.Sprintf("%s: %s", s.kind, s.reason)
}

// statusJSON is the wire form of a Status.
type statusJSON struct {
	Kind    Kind   `json:"kind"`
	Latency string `json:"latency,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// MarshalJSON implements json.Marshaler.
//
// Up statuses encode their latency as a Go duration string ("12.5ms") so the
// value round-trips without loss.
func (s Status) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	out := statusJSON{Kind: s.kind}
	if s.kind == KindUp {
		out.Latency = s.latency.String()
	} else {
		out.Reason = s.reason
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var in statusJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	switch in.Kind {
	case KindUp:
		var latency time.Duration
		if in.Latency != "" {
			parsed, err := time.ParseDuration(in.Latency)
			if err != nil {
				return fmt.Errorf("invalid latency %q: %w", in.Latency, err)
			}
			latency = parsed
		}
		if latency < 0 {
			return fmt.Errorf("latency cannot be negative, got %s", latency)
		}
		*s = Up(latency)
	case KindDown:
		*s = Down(in.Reason)
	case KindUnknown:
		*s = Unknown(in.Reason)
	case "":
		return errors.New("status kind is required")
	default:
		return fmt.Errorf("unknown status kind %q", in.Kind)
	}
	return nil
}

// TimedStatus is a [Status] observed at a given instant.
type TimedStatus struct {
	// Time is when the observation was made.
	Time time.Time `json:"time"`

	// Status is the observation itself.
	Status Status `json:"status"`
}

// At pairs a status with its observation time.
func At(t time.Time, s Status) TimedStatus {
	return TimedStatus{Time: t, Status: s}
}

// String implements fmt.Stringer.
func (ts TimedStatus) String() string {
	return fmt.Sprintf("%s @ %s", ts.Status, ts.Time.Format(time.RFC3339Nano))
}
