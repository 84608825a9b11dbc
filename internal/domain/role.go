package domain

import (
	"fmt"
	"strings"
)

// Role determines the default permission set of an account.
type Role string

const (
	// RoleAdministrator can access every feature and manage accounts.
	RoleAdministrator Role = "admin"

	// RoleCashier is limited to the point-of-sale features.
	RoleCashier Role = "cashier"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdministrator, RoleCashier}

// IsValid reports whether r is a member of the closed role set.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdministrator, RoleCashier:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns the capitalized role name.
func (r Role) DisplayName() string {
	switch r {
	case RoleAdministrator:
		return "Administrator"
	case RoleCashier:
		return "Cashier"
	}
	return string(r)
}

// ParseRole parses a role name. "administrator" is accepted as an alias of "admin".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "administrator":
		return RoleAdministrator, nil
	case "cashier":
		return RoleCashier, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

// Feature is a named capability gated by role-based permission checks.
type Feature string

// Cashier features.
const (
	FeatureBilling       Feature = "billing"
	FeatureMedicineView  Feature = "medicine_view"
	FeatureDashboardView Feature = "dashboard_view"
	FeatureSalesView     Feature = "sales_view"
)

// Administrator-only features.
const (
	FeatureMedicineManage Feature = "medicine_manage"
	FeatureUserManagement Feature = "user_management"
	FeatureReports        Feature = "reports"
	FeatureSettings       Feature = "settings"
	FeatureBackup         Feature = "backup"
)

// Allows reports whether the role grants the feature.
// Unknown roles and unknown features are denied.
func (r Role) Allows(f Feature) bool {
	switch r {
	case RoleAdministrator:
		return true
	case RoleCashier:
		return cashierAllows(f)
	}
	return false
}

func cashierAllows(f Feature) bool {
	switch f {
	case FeatureBilling, FeatureMedicineView, FeatureDashboardView, FeatureSalesView:
		return true
	}
	return false
}
