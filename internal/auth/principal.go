package auth

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Principal is the resolved identity passed explicitly into every engine
// call. Zero value = anonymous (guest checkout). Tidak ada ambient
// session state di core.
type Principal struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Email string `json:"email,omitempty"`
}

func (p Principal) IsAdmin() bool    { return p.Role == RoleAdmin }
func (p Principal) IsCustomer() bool { return p.Role == RoleCustomer }
func (p Principal) Anonymous() bool  { return p.Role == "" }
