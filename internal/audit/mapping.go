package audit

import "strings"

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// methodOverrides maps RPCs whose audit action is not derivable from the method prefix.
var methodOverrides = map[string]ActionResource{
	"/course_admin.session.v1.SessionService/Logout":             {Action: "logout", Resource: "session"},
	"/course_admin.session.v1.SessionService/LogoutOtherDevices": {Action: "logout_other_devices", Resource: "session"},
	"/course_admin.session.v1.SessionService/RefreshSession":     {Action: "refresh", Resource: "session"},
	"/course_admin.session.v1.SessionService/ValidateSession":    {Action: "validate", Resource: "session"},
}

// ParseFullMethod returns action and resource for a gRPC full method (e.g.
// /course_admin.session.v1.SessionService/ListMySessions -> list, session).
func ParseFullMethod(fullMethod string) ActionResource {
	if ar, ok := methodOverrides[fullMethod]; ok {
		return ar
	}
	// fullMethod format: /package.v1.ServiceName/MethodName
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	return ActionResource{Action: methodToAction(method), Resource: serviceToResource(beforeSlash[dot+1:])}
}

func serviceToResource(serviceName string) string {
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s[0:1]) + s[1:]
}

func methodToAction(method string) string {
	for _, p := range []struct{ prefix, action string }{
		{"Get", "get"},
		{"List", "list"},
		{"Create", "create"},
		{"Update", "update"},
		{"Delete", "delete"},
		{"Revoke", "revoke"},
	} {
		if strings.HasPrefix(method, p.prefix) && method != p.prefix {
			return p.action
		}
	}
	return strings.ToLower(method)
}
