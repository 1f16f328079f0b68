package identity

// Role is the coarse role the upstream assigns to a user. The gateway only
// relays it for the client's redirect decision.
type Role string

const (
	RoleStudent  Role = "student"
	RoleTeacher  Role = "teacher"
	RoleTrainer  Role = "trainer"
	RoleAdmin    Role = "admin"
	RoleSubAdmin Role = "sub_admin"
)

// Credentials is one access/refresh pair issued by the upstream provider.
// A refresh value is good for at most one successful rotation; the upstream
// supersedes it on every rotate.
type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Profile is the client-visible snapshot of the authenticated user. It is
// owned by the upstream; the gateway never mutates it.
type Profile struct {
	ID                  string `json:"id"`
	Role                Role   `json:"role"`
	ProfileComplete     bool   `json:"profile_complete"`
	IsStaff             bool   `json:"is_staff"`
	IsSuper             bool   `json:"is_super"`
	Points              int    `json:"points"`
	Streak              int    `json:"streak"`
	UnreadNotifications int    `json:"unread_notifications"`
}
