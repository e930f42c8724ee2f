package model

import "gorm.io/gorm"

// AuthenticatedRegistry holds credentials for a docker registry that
// projects push to, or pull utility images from.
type AuthenticatedRegistry struct {
	gorm.Model
	BaseName    string `gorm:"type:varchar(255);uniqueIndex;not null"`
	DisplayName string `gorm:"type:varchar(255)"`
	Username    string `gorm:"type:varchar(255)"`
	Password    string `gorm:"type:varchar(255)"`
	Email       string `gorm:"type:varchar(255)"`
	Insecure    bool   `gorm:"not null"`
}

// NeedsLogin reports whether any credential is set for this registry.
func (r *AuthenticatedRegistry) NeedsLogin() bool {
	return r.Username != "" || r.Password != "" || r.Email != ""
}

// Display is the name shown in logs and stage output.
func (r *AuthenticatedRegistry) Display() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.BaseName
}
