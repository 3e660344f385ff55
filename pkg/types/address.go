package types

import "strings"

// Address captures the service location a client supplies with a request.
// Persisted as jsonb via the GORM json serializer.
type Address struct {
	Street   string `json:"street,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Pincode  string `json:"pincode,omitempty"`
	Landmark string `json:"landmark,omitempty"`
}

// IsZero reports whether no field was provided.
func (a Address) IsZero() bool {
	return a == Address{}
}

// FullAddress renders the address as a single display line.
func (a Address) FullAddress() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.Landmark, a.City, a.State} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	line := strings.Join(parts, ", ")
	if strings.TrimSpace(a.Pincode) != "" {
		if line == "" {
			return a.Pincode
		}
		line += " " + a.Pincode
	}
	return line
}
