package domain

// Roles known to the service. The agent ("broker") is a platform-side role
// with authority over any booking; hosts only over bookings of their places.
const (
	RoleClient = "client"
	RoleHost   = "host"
	RoleAgent  = "agent"
)

// Default configuration values
const (
	DefaultCooldownMinutes = 0 // missing place cooldown config defaults to zero
)

// Time format constants
const (
	TimeFormat = "15:04"      // HH:MM
	DateFormat = "2006-01-02" // YYYY-MM-DD
)
