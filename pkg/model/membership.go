package model

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTechnician Role = "technician"
	RoleMember     Role = "member"
)

// PrivilegedRoles receive operational notifications about promotions.
var PrivilegedRoles = []Role{RoleAdmin, RoleTechnician}

func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleTechnician
}

type MembershipStatus string

const (
	MembershipActive          MembershipStatus = "active"
	MembershipPendingApproval MembershipStatus = "pending_approval"
	MembershipRejected        MembershipStatus = "rejected"
	MembershipRevoked         MembershipStatus = "revoked"
)

type User struct {
	ID   string `json:"id" bson:"_id"`
	Name string `json:"name" bson:"name"`
	Role Role   `json:"role" bson:"role"`
}

type LabMembership struct {
	UserID string           `json:"user_id" bson:"user_id"`
	LabID  string           `json:"lab_id" bson:"lab_id"`
	Status MembershipStatus `json:"status" bson:"status"`
}
