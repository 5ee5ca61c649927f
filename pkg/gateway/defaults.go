package gateway

// defaultRules is the platform's route-protection matrix. Public rules come
// first so the carve-outs of the protected prefixes below stay explicit in
// both places.
var defaultRules = []Rule{
	// Public

	{
		Name:    "auth-public",
		Paths:   []string{"/api/v1/auth/login", "/api/v1/auth/refresh-token", "/api/v1/users/superadmin/init"},
		Service: ServiceUsers,
	},
	{
		Name:    "user-service-health",
		Paths:   []string{"/api/user-service/actuator/**"},
		Service: ServiceUsers,
		Rewrite: &Rewrite{
			Pattern:     "^/api/user-service/actuator(?P<segment>/.*)?$",
			Replacement: "/actuator${segment}",
		},
	},
	{
		Name:    "assessment-service-health",
		Paths:   []string{"/api/assessment-service/actuator/**"},
		Service: ServiceAssessments,
		Rewrite: &Rewrite{
			Pattern:     "^/api/assessment-service/actuator(?P<segment>/.*)?$",
			Replacement: "/actuator${segment}",
		},
	},
	{
		Name:    "gateway-actuator",
		Paths:   []string{"/actuator/**"},
		Service: ServiceSelf,
	},
	{
		Name:    "swagger-ui",
		Paths:   []string{"/swagger-ui/**", "/swagger-ui.html", "/webjars/**"},
		Service: ServiceSelf,
	},
	{
		Name:    "openapi-docs",
		Paths:   []string{"/v3/api-docs/**"},
		Service: ServiceSelf,
	},

	// Protected

	{
		Name:         "user-service-auth-protected",
		Paths:        []string{"/api/v1/auth/**"},
		Exclude:      []string{"/api/v1/auth/login", "/api/v1/auth/refresh-token"},
		Service:      ServiceUsers,
		RequiresAuth: true,
	},
	{
		Name:         "user-service-users",
		Paths:        []string{"/api/v1/users/**"},
		Exclude:      []string{"/api/v1/users/superadmin/init"},
		Service:      ServiceUsers,
		RequiresAuth: true,
	},
	{
		Name:         "user-service-roles",
		Paths:        []string{"/api/v1/roles/**"},
		Service:      ServiceUsers,
		RequiresAuth: true,
	},
	{
		Name:         "assessment-service-assessments",
		Paths:        []string{"/api/v1/assessments/**"},
		Service:      ServiceAssessments,
		RequiresAuth: true,
	},
	{
		Name:         "assessment-service-feedback",
		Paths:        []string{"/api/v1/feedback/**"},
		Service:      ServiceAssessments,
		RequiresAuth: true,
	},
	{
		Name:         "assessment-service-teacher-surveys",
		Paths:        []string{"/api/v1/teacher-surveys/**"},
		Service:      ServiceAssessments,
		RequiresAuth: true,
	},
	{
		Name:         "assessment-service-surveys",
		Paths:        []string{"/api/v1/surveys/**"},
		Service:      ServiceAssessments,
		RequiresAuth: true,
	},
}

// DefaultTable returns the platform's default route table.
func DefaultTable() *Table {
	t, err := NewTable(defaultRules)
	if err != nil {
		panic("gateway: invalid default route table: " + err.Error())
	}
	return t
}
