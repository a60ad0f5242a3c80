package users

// Role distinguishes the two account kinds.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// User is a device-local account. Accounts never enter the change log; auth
// data stays on the device.
type User struct {
	ID                 uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Username           string `gorm:"column:username;size:190;not null;uniqueIndex"`
	Password           string `gorm:"column:password;size:190;not null"`
	Role               Role   `gorm:"column:role;size:16;not null"`
	Name               string `gorm:"column:name;size:190;not null"`
	Class              string `gorm:"column:class;size:64;not null;default:''"`
	Language           string `gorm:"column:language;size:8;not null;default:'en'"`
	CreatedAtSeconds   int64  `gorm:"column:created_at_s;not null"`
	LastLoginAtSeconds int64  `gorm:"column:last_login_at_s;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}
