package enums

import "fmt"

// ProviderResponse mirrors the provider's decision on a request. It is kept
// in lockstep with RequestStatus by the request state machine.
type ProviderResponse string

const (
	ProviderResponsePending  ProviderResponse = "pending"
	ProviderResponseAccepted ProviderResponse = "accepted"
	ProviderResponseDeclined ProviderResponse = "declined"
)

var validProviderResponses = []ProviderResponse{
	ProviderResponsePending,
	ProviderResponseAccepted,
	ProviderResponseDeclined,
}

// IsValid reports whether the value is a known ProviderResponse.
func (p ProviderResponse) IsValid() bool {
	for _, candidate := range validProviderResponses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProviderResponse converts raw input into a ProviderResponse.
func ParseProviderResponse(value string) (ProviderResponse, error) {
	for _, candidate := range validProviderResponses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider response %q", value)
}
