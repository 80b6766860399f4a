// Package cli implements tenantgate-cli, offline tooling for the permission
// evaluator and the route guard, plus API token administration.
//
// Commands:
//
//	tenantgate-cli eval -level ADMIN -perms manage_tenants,manage_roles
//	tenantgate-cli route -policy routes.yaml -path /manager/users -caps manager,users
//	tenantgate-cli policy-check -policy routes.yaml [-dump]
//	tenantgate-cli levels
//	tenantgate-cli token create -user 42 -name laptop -expires 720h
//	tenantgate-cli token list -user 42
//	tenantgate-cli token revoke -id 7 -by 1 -reason rotated
package cli
