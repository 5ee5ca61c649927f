// Package fixtures provides shared test data for the academic platform's
// test suite.
package fixtures

// Token holders used across auth, gateway and service tests.
const (
	// StudentSubject is the subject of the default STUDENT token.
	StudentSubject = "1001"

	// StudentUsername is the username of the default STUDENT token.
	StudentUsername = "gverdi"

	// TeacherSubject is the subject of the default TEACHER token.
	TeacherSubject = "42"

	// TeacherUsername is the username of the default TEACHER token.
	TeacherUsername = "mrossi"

	// AdminSubject is the subject of the default ADMIN token.
	AdminSubject = "7"

	// AdminUsername is the username of the default ADMIN token.
	AdminUsername = "admin"
)

// Roles as they appear in token claims.
const (
	RoleStudent    = "STUDENT"
	RoleTeacher    = "TEACHER"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

// RoutesYAML is a small route table in the gateway's file format.
const RoutesYAML = `routes:
  - name: auth-public
    paths: [/api/v1/auth/login]
    service: user-service
    requiresAuth: false
  - name: assessments
    paths: [/api/v1/assessments/**]
    service: assessment-service
    requiresAuth: true
  - name: roles
    paths: [/api/v1/roles/**]
    service: user-service
    requiresAuth: true
    minRole: ROLE_ADMIN
`
