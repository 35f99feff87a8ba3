package auth

const (
	ScopeOpenID         = "openid"
	ScopeProfile        = "profile"
	ScopeEmail          = "email"
	ScopePipelinesRead  = "pipelines:read"
	ScopePipelinesWrite = "pipelines:write"
)

// AllScopes defines the full set of scopes used by the dashboard frontend.
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopePipelinesRead,
	ScopePipelinesWrite,
}
