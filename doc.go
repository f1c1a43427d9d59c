// Package stepup implements step-up access verification for sensitive
// resources: a one-time-code challenge layered on top of an existing
// bearer-credential session.
//
// An already-authenticated user who wants to read a sensitive resource first
// requests a verification challenge for a resource scope
// ([Engine.RequestVerification]). A 6-digit code is delivered out of band and
// submitted back ([Engine.VerifyCode]), which mints a short-lived,
// resource-scoped access session token. Resource endpoints check that token
// through [Engine.Authorize] (or the middleware Gate) before serving data.
//
// All state lives in Redis, so any number of stateless instances can share
// the challenge and session stores. Challenge consumption is atomic: a code
// is consumed by exactly one caller even under concurrent submission, and a
// session token authorizes only the exact scope it was issued for.
//
// # Architecture boundaries
//
// stepup is the public surface. It exposes [Engine], [Builder], [Config],
// sentinel errors, and value types (ResourceScope, ChallengeReceipt,
// AccessGrant, MetricsSnapshot). Record encodings and the Redis scripts that
// enforce atomic state transitions are implementation details and never
// leave this package.
//
// # Performance contract
//
// Authorize is the hot path: it is a single Redis GET plus an in-memory
// expiry and scope check. RequestVerification and VerifyCode are allowed one
// scripted Redis round-trip each; the outbound code delivery call happens
// after the challenge is persisted and holds no store locks.
package stepup
