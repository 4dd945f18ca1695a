// Package auth issues and validates the HS256 bearer tokens that guard
// entity writes.
//
// The director keeps no user database. Any holder of the shared secret can
// mint a token for an automation client:
//
//	token, err := auth.GenerateToken("node-red", cfg.Security.JWT, 365*24*time.Hour)
//
// and the API checks it with ParseToken. An empty secret disables auth.
package auth
