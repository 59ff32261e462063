package models

// Role is the marketplace side a user acts on
type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleFreelancer
}

// Actor is the caller identity resolved by the identity provider
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsClient returns true if the actor acts as a client
func (a Actor) IsClient() bool {
	return a.Role == RoleClient
}

// IsFreelancer returns true if the actor acts as a freelancer
func (a Actor) IsFreelancer() bool {
	return a.Role == RoleFreelancer
}
