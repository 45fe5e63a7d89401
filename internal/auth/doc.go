// Package auth admits WebSocket connections by verifying their bearer token.
//
// Tokens are HS256 JWTs signed with a secret shared with the service that
// issues them. The user id travels in the "uid" claim; the standard "sub"
// claim is accepted when "uid" is absent. A token is checked once, when the
// connection is established.
package auth
