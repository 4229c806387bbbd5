// Package domain provides shared domain primitives: typed identifiers that
// make it impossible to pass an application ID where a program ID belongs.
package domain

import (
	"github.com/google/uuid"

	dErrors "habita/pkg/domain-errors"
)

// Typed UUID identifiers. Distinct types so the compiler catches crossed IDs.
type (
	// ApplicationID identifies one citizen's request for one program.
	ApplicationID uuid.UUID
	// ProgramID identifies a housing-benefit program.
	ProgramID uuid.UUID
	// ApplicantID identifies the citizen behind an application.
	ApplicantID uuid.UUID
	// UnitID identifies a housing unit in the external pool.
	UnitID uuid.UUID
)

// NewApplicationID returns a fresh random ApplicationID.
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }

// NewProgramID returns a fresh random ProgramID.
func NewProgramID() ProgramID { return ProgramID(uuid.New()) }

// NewApplicantID returns a fresh random ApplicantID.
func NewApplicantID() ApplicantID { return ApplicantID(uuid.New()) }

// NewUnitID returns a fresh random UnitID.
func NewUnitID() UnitID { return UnitID(uuid.New()) }

func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id ProgramID) String() string     { return uuid.UUID(id).String() }
func (id ApplicantID) String() string   { return uuid.UUID(id).String() }
func (id UnitID) String() string        { return uuid.UUID(id).String() }

func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ProgramID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ApplicantID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id UnitID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// The IDs serialize as canonical UUID strings, not as raw byte arrays, so a
// value read from any payload can be fed straight back into a URL or query.

func (id ApplicationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ProgramID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id ApplicantID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id UnitID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }

func (id *ApplicationID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

func (id *ProgramID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

func (id *ApplicantID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

func (id *UnitID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be empty", kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID: %s", kind, s)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", kind)
	}
	return parsed, nil
}

// ParseApplicationID validates and returns an ApplicationID.
func ParseApplicationID(s string) (ApplicationID, error) {
	parsed, err := parseUUID(s, "application id")
	return ApplicationID(parsed), err
}

// ParseProgramID validates and returns a ProgramID.
func ParseProgramID(s string) (ProgramID, error) {
	parsed, err := parseUUID(s, "program id")
	return ProgramID(parsed), err
}

// ParseApplicantID validates and returns an ApplicantID.
func ParseApplicantID(s string) (ApplicantID, error) {
	parsed, err := parseUUID(s, "applicant id")
	return ApplicantID(parsed), err
}

// ParseUnitID validates and returns a UnitID.
func ParseUnitID(s string) (UnitID, error) {
	parsed, err := parseUUID(s, "unit id")
	return UnitID(parsed), err
}
