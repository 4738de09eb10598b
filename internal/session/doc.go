// Package session guards the admin session of one execution context (a browser
// tab or a single request).
//
// A Guard keeps the session token in memory, mirrors it to a shared token store
// and enforces the inactivity timeout: when the context loses foreground the
// time is recorded, and if it stays away for longer than Timeout the session is
// dropped the next time it comes back. Changes made by other contexts arrive on
// a channel and are folded in by Sync.
//
// # States
//
//	signed_out --Login--> active --hidden--> away --visible (<= Timeout)--> active
//	                                          |
//	                                          +--visible/focus (> Timeout)--> expired
//
// Logout, a remote logout or an expiry all leave the guard unauthenticated.
package session
