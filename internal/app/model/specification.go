package model

import (
	"github.com/hashicorp/go-version"
)

// Specification is the pact specification version a contract is written against.
type Specification int

const (
	SpecificationUnknown Specification = iota
	SpecificationV1
	SpecificationV1_1
	SpecificationV2
	SpecificationV3
	SpecificationV4
)

// DefaultSpecification is used for pacts that never had a version set.
const DefaultSpecification = SpecificationV3

func (s Specification) String() string {
	switch s {
	case SpecificationV1:
		return "V1"
	case SpecificationV1_1:
		return "V1.1"
	case SpecificationV2:
		return "V2"
	case SpecificationV3:
		return "V3"
	case SpecificationV4:
		return "V4"
	}
	return "unknown"
}

// Version is the value written to metadata.pactSpecification.version.
func (s Specification) Version() string {
	switch s {
	case SpecificationV1:
		return "1.0.0"
	case SpecificationV1_1:
		return "1.1.0"
	case SpecificationV2:
		return "2.0.0"
	case SpecificationV4:
		return "4.0"
	}
	return "3.0.0"
}

func (s Specification) Valid() bool {
	return s >= SpecificationV1 && s <= SpecificationV4
}

// OrDefault returns s, or DefaultSpecification when s is unknown.
func (s Specification) OrDefault() Specification {
	if !s.Valid() {
		return DefaultSpecification
	}
	return s
}

// ParseSpecification maps a version string such as "3.0.0" or "4.0" to a Specification.
func ParseSpecification(v string) Specification {
	parsed, err := version.NewVersion(v)
	if err != nil {
		return SpecificationUnknown
	}

	segments := parsed.Segments()
	major, minor := segments[0], 0
	if len(segments) > 1 {
		minor = segments[1]
	}

	switch major {
	case 1:
		if minor >= 1 {
			return SpecificationV1_1
		}
		return SpecificationV1
	case 2:
		return SpecificationV2
	case 3:
		return SpecificationV3
	case 4:
		return SpecificationV4
	}
	return SpecificationUnknown
}
