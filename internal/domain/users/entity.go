package users

// User is a submitter, identified by its routing/virtual-host key.
type User struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	// Namespace is the submitter's storage namespace (blob bucket prefix).
	Namespace string `json:"namespace"`
	// Quota is the job budget per rolling window; 0 disables the quota.
	Quota int `json:"quota"`
}

// Unlimited reports whether quota enforcement is disabled for the user.
func (u *User) Unlimited() bool { return u.Quota == 0 }
