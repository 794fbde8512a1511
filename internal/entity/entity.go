package entity

import (
	"fmt"
	"strings"
)

// Kind tags the shape of an identifier submitted for lookup.
type Kind string

const (
	// KindEmail marks an email address; its domain is the part after the single @.
	KindEmail Kind = "email"
	// KindDomain marks a bare domain; the value is its own domain component.
	KindDomain Kind = "domain"
)

// Identifier is an immutable value submitted for reputation lookup.
type Identifier struct {
	Kind  Kind   `json:"type"`
	Value string `json:"value"`
}

// Email builds an email identifier.
func Email(value string) Identifier { return Identifier{Kind: KindEmail, Value: value} }

// Domain builds a domain identifier.
func Domain(value string) Identifier { return Identifier{Kind: KindDomain, Value: value} }

// ParseKind maps a caller supplied type tag onto a Kind. An empty tag is
// treated as email since that is the only type the upstream service accepts.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "email":
		return KindEmail, nil
	case "domain":
		return KindDomain, nil
	default:
		return "", fmt.Errorf("entity: unsupported type %q", raw)
	}
}

// DomainPart returns the domain component used for pattern suppression.
// Email values must contain exactly one @ with a non-empty remainder;
// anything else reports false so only exact suppression applies.
func (id Identifier) DomainPart() (string, bool) {
	switch id.Kind {
	case KindDomain:
		value := strings.TrimSpace(id.Value)
		return value, value != ""
	case KindEmail:
		tokens := strings.Split(id.Value, "@")
		if len(tokens) != 2 || tokens[1] == "" {
			return "", false
		}
		return tokens[1], true
	default:
		return "", false
	}
}

// Normalized is the lower-cased value used for exact-match comparisons.
func (id Identifier) Normalized() string {
	return strings.ToLower(strings.TrimSpace(id.Value))
}

func (id Identifier) String() string { return id.Value }
