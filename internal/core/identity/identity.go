package identity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidIdentity marks identities that cannot name an event stream.
var ErrInvalidIdentity = errors.New("invalid identity")

const separator = "/"

// Identity names exactly one aggregate and therefore one event log.
// It is a comparable value and safe to use as a map key.
type Identity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Identifiable is implemented by anything that can report the aggregate it belongs to.
type Identifiable interface {
	Identity() Identity
}

// New returns the identity of aggregate id of the given type.
func New(aggregateType, id string) Identity {
	return Identity{Type: aggregateType, ID: id}
}

// Parse reads the "type/id" form produced by String.
func Parse(s string) (Identity, error) {
	typ, id, ok := strings.Cut(s, separator)
	if !ok {
		return Identity{}, fmt.Errorf("%w: %q has no type separator", ErrInvalidIdentity, s)
	}
	ident := Identity{Type: typ, ID: id}
	if err := ident.Validate(); err != nil {
		return Identity{}, err
	}
	return ident, nil
}

func (i Identity) String() string {
	return i.Type + separator + i.ID
}

func (i Identity) IsZero() bool {
	return i.Type == "" && i.ID == ""
}

// Validate rejects identities with an empty part or a type containing the separator.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidIdentity)
	}
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidIdentity)
	}
	if strings.Contains(i.Type, separator) {
		return fmt.Errorf("%w: type %q must not contain %q", ErrInvalidIdentity, i.Type, separator)
	}
	return nil
}
