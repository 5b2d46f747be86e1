package testutil

import (
	"net/http"

	id "homechef/pkg/domain"
	"homechef/pkg/requestcontext"
)

// AsCustomer puts userID in the request context with the customer role, as
// the auth middleware would.
func AsCustomer(req *http.Request, userID id.UserID) *http.Request {
	return as(req, userID, requestcontext.RoleCustomer)
}

// AsProvider is AsCustomer for a meal provider.
func AsProvider(req *http.Request, providerID id.UserID) *http.Request {
	return as(req, providerID, requestcontext.RoleMealProvider)
}

func as(req *http.Request, userID id.UserID, role requestcontext.Role) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}
