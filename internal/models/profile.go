package models

import "strings"

type UserProfile struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
}

type AdvisorProfile struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// DisplayName resolves a user's visible name: full name, then username, then
// email, then the generic placeholder.
func (p *UserProfile) DisplayName() string {
	if name := joinName(p.FirstName, p.LastName); name != "" {
		return name
	}
	if p.Username != "" {
		return p.Username
	}
	if p.Email != "" {
		return p.Email
	}
	return DefaultDisplayName
}

// DisplayName resolves an advisor's visible name: full name, then email, then
// the generic placeholder.
func (p *AdvisorProfile) DisplayName() string {
	if name := joinName(p.FirstName, p.LastName); name != "" {
		return name
	}
	if p.Email != "" {
		return p.Email
	}
	return DefaultDisplayName
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
