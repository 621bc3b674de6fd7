package domain

// Agent describes a configured agent for listings. Names are internal and
// never shown to end users.
type Agent struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Tools     []string `json:"tools"`
	IsPrimary bool     `json:"isPrimary,omitempty"`
}
