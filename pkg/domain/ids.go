// Package domain holds the typed identifiers shared across modules.
//
// Every aggregate gets its own UUID-backed type so a RequestID can never be
// passed where an EmployeeID is expected. Stores convert to uuid.UUID at the
// persistence boundary.
package domain

import "github.com/google/uuid"

type (
	// EmployeeID identifies a user in the employee directory.
	EmployeeID uuid.UUID

	// RequestID identifies an expense request.
	RequestID uuid.UUID

	// CategoryID identifies an expense category.
	CategoryID uuid.UUID

	// ActionID identifies one approval action row.
	ActionID uuid.UUID

	// EntryID identifies one audit chain entry.
	EntryID uuid.UUID
)

func NewEmployeeID() EmployeeID { return EmployeeID(uuid.New()) }
func NewRequestID() RequestID   { return RequestID(uuid.New()) }
func NewCategoryID() CategoryID { return CategoryID(uuid.New()) }
func NewActionID() ActionID     { return ActionID(uuid.New()) }
func NewEntryID() EntryID       { return EntryID(uuid.New()) }

func (id EmployeeID) String() string { return uuid.UUID(id).String() }
func (id RequestID) String() string  { return uuid.UUID(id).String() }
func (id CategoryID) String() string { return uuid.UUID(id).String() }
func (id ActionID) String() string   { return uuid.UUID(id).String() }
func (id EntryID) String() string    { return uuid.UUID(id).String() }

// The IDs travel as canonical UUID strings in JSON.
func (id EmployeeID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id RequestID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id CategoryID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ActionID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id EntryID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func (id *EmployeeID) UnmarshalText(text []byte) error {
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*id = EmployeeID(u)
	return nil
}

func (id *RequestID) UnmarshalText(text []byte) error {
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*id = RequestID(u)
	return nil
}

func (id *CategoryID) UnmarshalText(text []byte) error {
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*id = CategoryID(u)
	return nil
}

func (id *ActionID) UnmarshalText(text []byte) error {
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*id = ActionID(u)
	return nil
}

func (id *EntryID) UnmarshalText(text []byte) error {
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*id = EntryID(u)
	return nil
}

func (id EmployeeID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id CategoryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// ParseEmployeeID parses the canonical string form of an employee ID.
func ParseEmployeeID(s string) (EmployeeID, error) {
	u, err := uuid.Parse(s)
	return EmployeeID(u), err
}

// ParseRequestID parses the canonical string form of a request ID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := uuid.Parse(s)
	return RequestID(u), err
}

// ParseCategoryID parses the canonical string form of a category ID.
func ParseCategoryID(s string) (CategoryID, error) {
	u, err := uuid.Parse(s)
	return CategoryID(u), err
}

// ParseEntryID parses the canonical string form of an audit entry ID.
func ParseEntryID(s string) (EntryID, error) {
	u, err := uuid.Parse(s)
	return EntryID(u), err
}
