package model

import (
	"gorm.io/gorm"
)

// Project is a named, slugged repository configuration. It owns its jobs;
// deleting a project cascades to them.
type Project struct {
	gorm.Model
	Slug string `gorm:"type:varchar(255);uniqueIndex;not null"`
	Name string `gorm:"type:varchar(255);not null"`
	Repo string `gorm:"type:varchar(255);not null"`

	// Utility projects provide service containers for other projects'
	// test stages; they must have a target registry to be pulled from.
	Utility bool `gorm:"not null;index"`

	// BranchPattern is a regular expression; jobs on matching branches
	// are push candidates even without a version tag.
	BranchPattern string `gorm:"type:varchar(255)"`

	GithubRepoID string `gorm:"type:varchar(255)"`
	GithubHookID *int64
	GithubSecret string `gorm:"type:varchar(255)"`

	GitlabRepoID string `gorm:"type:varchar(255)"`
	GitlabSecret string `gorm:"type:varchar(255)"`

	TargetRegistryID *uint
	TargetRegistry   *AuthenticatedRegistry `gorm:"foreignKey:TargetRegistryID"`

	Jobs []Job `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

// ShieldText is the human status for shields.io style badges, based on the
// given latest completed job result.
func (p *Project) ShieldText(latestResult string) string {
	switch latestResult {
	case ResultSuccess:
		return "Passing"
	case ResultFail:
		return "Failing"
	case "":
		return "Not Run"
	default:
		return "Broken"
	}
}

// ShieldColor is the badge color matching ShieldText.
func (p *Project) ShieldColor(latestResult string) string {
	switch latestResult {
	case ResultSuccess:
		return "green"
	case ResultFail, ResultBroken:
		return "red"
	default:
		return "lightgrey"
	}
}
