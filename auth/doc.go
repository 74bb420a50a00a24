// Package auth manages the client's bearer token lifecycle.
//
// The Store type holds the token the realtime session presents when dialing
// the control socket, tracks mock and reachability flags, and re-acquires
// credentials through an application-supplied refresh hook when the platform
// rejects the token.
//
// # Usage
//
//	store := auth.NewStore(initialToken,
//		auth.WithRefresh(func() (string, error) {
//			return login(username, password)
//		}),
//	)
//	session := realtime.New(store)
//
// Expired JWTs are detected locally (unverified exp claim) so the client
// refreshes before dialing instead of burning a round trip on a 401.
package auth
