package auth

import (
	"github.com/marcus-qen/monfront/internal/frontend/mvc"
	"github.com/marcus-qen/monfront/internal/frontend/users"
)

// Access rules checked by controllers.
const (
	RuleMonitoringServices  = "ui.monitoring.services"
	RuleManageServices      = "actions.manage_services"
	RuleEventCorrelation    = "ui.data_collection.event_correlation"
	RuleDataCollectionHosts = "ui.data_collection.hosts"
	RuleAuditLog            = "ui.reports.audit"
)

// RoleRules returns the access rules granted to a role.
func RoleRules(role string) []string {
	switch role {
	case users.RoleSuperAdmin:
		return []string{
			RuleMonitoringServices,
			RuleManageServices,
			RuleEventCorrelation,
			RuleDataCollectionHosts,
			RuleAuditLog,
		}
	case users.RoleAdmin:
		return []string{
			RuleMonitoringServices,
			RuleManageServices,
			RuleDataCollectionHosts,
		}
	case users.RoleUser:
		return []string{RuleMonitoringServices}
	default:
		return []string{}
	}
}

// UserTypeForRole maps a role to the controller-visible user tier.
func UserTypeForRole(role string) mvc.UserType {
	switch role {
	case users.RoleSuperAdmin:
		return mvc.UserTypeSuperAdmin
	case users.RoleAdmin:
		return mvc.UserTypeAdmin
	case users.RoleUser:
		return mvc.UserTypeUser
	default:
		return 0
	}
}
