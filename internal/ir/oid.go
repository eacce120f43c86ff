package ir

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxOIDLength bounds the byte length of an OID.
const MaxOIDLength = 512

// ValidateOID checks that oid is usable as an entity identifier.
func ValidateOID(oid string) error {
	if oid == "" {
		return fmt.Errorf("empty oid")
	}
	if len(oid) > MaxOIDLength {
		return fmt.Errorf("oid longer than %d bytes", MaxOIDLength)
	}
	if strings.TrimSpace(oid) != oid {
		return fmt.Errorf("oid %q has leading or trailing whitespace", oid)
	}
	for _, r := range oid {
		if unicode.IsControl(r) {
			return fmt.Errorf("oid %q contains control character %U", oid, r)
		}
	}
	return nil
}

// ConnectorID identifies the connector instance that produced a change.
// Its full form is "domainType+connectorType+instanceId".
type ConnectorID struct {
	Domain    string `json:"domain"`
	Connector string `json:"connector"`
	Instance  string `json:"instance"`
}

// ParseConnectorID splits a full connector id into its three parts.
func ParseConnectorID(full string) (ConnectorID, error) {
	parts := strings.Split(full, "+")
	if len(parts) != 3 {
		return ConnectorID{}, fmt.Errorf("connector id %q: want domain+connector+instance", full)
	}
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			return ConnectorID{}, fmt.Errorf("connector id %q: part %d is empty", full, i+1)
		}
	}
	return ConnectorID{Domain: parts[0], Connector: parts[1], Instance: parts[2]}, nil
}

// String returns the full "domain+connector+instance" form.
func (c ConnectorID) String() string {
	return c.Domain + "+" + c.Connector + "+" + c.Instance
}

// OID derives the OID of a model-local id produced by this connector.
func (c ConnectorID) OID(localID string) string {
	return c.String() + "/" + localID
}
