package userservice

// User пользователь с ролью в системе
type User struct {
	ID       int64  `json:"id"`
	Role     string `json:"role"` // client | host | agent
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
}
