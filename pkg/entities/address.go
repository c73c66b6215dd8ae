package entities

import (
	"fmt"

	"github.com/pkg/errors"
)

// Address identifies one device inside one gateway network.
// A zero Gateway marks a node that has not been bound to a gateway yet and a
// zero Node addresses any node of the gateway.
type Address struct {
	Gateway uint16
	Node    uint16
}

const addressFormat = "%04X:%04X"

var ErrInvalidAddress = errors.New("invalid address")

func (a Address) String() string {
	return fmt.Sprintf(addressFormat, a.Gateway, a.Node)
}

// WithNode returns the exchange address for node within the gateway of a.
func (a Address) WithNode(node uint16) Address {
	return Address{Gateway: a.Gateway, Node: node}
}

// Accepts reports whether a frame stamped with other belongs to an exchange
// held under a. Zero fields act as wildcards.
func (a Address) Accepts(other Address) bool {
	if a.Gateway != 0 && other.Gateway != 0 && other.Gateway != a.Gateway {
		return false
	}
	return a.Node == 0 || other.Node == a.Node
}

func ParseAddress(s string) (Address, error) {
	var a Address
	var trailing string
	n, _ := fmt.Sscanf(s, "%04X:%04X%s", &a.Gateway, &a.Node, &trailing)
	if n != 2 || len(s) != 9 {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "parse %q", s)
	}
	return a, nil
}

func (a Address) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

func (a *Address) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseAddress(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
