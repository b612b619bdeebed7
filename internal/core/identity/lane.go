package identity

import (
	"fmt"
	"strings"
)

const joinSeparator = "<-"

// Lane is one replay lane: the aggregate that owns a snapshot and the
// aggregate whose events feed it. A direct lane replays the owner's own
// stream; a join lane replays another aggregate's stream into the owner's
// view and is the persisted dependency edge Owner -> Source.
type Lane struct {
	Owner  Identity `json:"owner"`
	Source Identity `json:"source"`
}

func DirectLane(owner Identity) Lane {
	return Lane{Owner: owner, Source: owner}
}

func JoinLane(owner, source Identity) Lane {
	return Lane{Owner: owner, Source: source}
}

func (l Lane) IsJoin() bool {
	return l.Owner != l.Source
}

const keySeparator = "|"

var keyEscaper = strings.NewReplacer(`\`, `\\`, keySeparator, `\`+keySeparator)

// Key is a stable string form, used for lock striping and storage keys.
// Distinct lanes have distinct keys: "|" and "\" inside a part are escaped,
// and a type never contains "/".
func (l Lane) Key() string {
	return escapeKeyPart(l.Owner) + keySeparator + escapeKeyPart(l.Source)
}

func escapeKeyPart(i Identity) string {
	return keyEscaper.Replace(i.Type) + separator + keyEscaper.Replace(i.ID)
}

func (l Lane) String() string {
	if !l.IsJoin() {
		return l.Owner.String()
	}
	return l.Owner.String() + joinSeparator + l.Source.String()
}

// ParseLane parses the String form: "type/id" for a direct lane or
// "type/id<-type/id" for a join lane.
func ParseLane(s string) (Lane, error) {
	ownerRef, sourceRef, join := strings.Cut(s, joinSeparator)
	owner, err := Parse(strings.TrimSpace(ownerRef))
	if err != nil {
		return Lane{}, fmt.Errorf("lane owner: %w", err)
	}
	if !join {
		return DirectLane(owner), nil
	}
	source, err := Parse(strings.TrimSpace(sourceRef))
	if err != nil {
		return Lane{}, fmt.Errorf("lane source: %w", err)
	}
	return JoinLane(owner, source), nil
}

func (l Lane) Validate() error {
	if err := l.Owner.Validate(); err != nil {
		return fmt.Errorf("lane owner: %w", err)
	}
	if err := l.Source.Validate(); err != nil {
		return fmt.Errorf("lane source: %w", err)
	}
	return nil
}
