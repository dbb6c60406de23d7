package model

import "strings"

// RoleSales is the department string of users who monitor the loads they
// created rather than their bid assignments.
const RoleSales = "sales"

// User is the signed-in console user.
type User struct {
	ID   string `mapstructure:"id" yaml:"id"`
	Name string `mapstructure:"name" yaml:"name"`
	Role string `mapstructure:"role" yaml:"role"`
}

// IsSales reports whether the user belongs to the sales department.
func (u User) IsSales() bool {
	return strings.EqualFold(strings.TrimSpace(u.Role), RoleSales)
}
