// Package s2s implements the Space2Study account and session lifecycle:
// signup with email confirmation, password and Google login, refresh token
// rotation, password reset, the user directory and admin invitations.
//
// Tokens:
//   - Four HMAC token kinds (access, refresh, confirm, reset) each with their
//     own secret and lifetime. Only refresh, confirm and reset tokens are
//     persisted, one record per user, and every consume is a compare and swap
//     so a token can be used at most once.
//
// HTTP:
//   - RegisterAuthRoutes, RegisterUserRoutes and RegisterInvitationRoutes mount
//     the controllers on any go-router Router. ProtectedRoute guards routes with
//     the access token found in the Authorization header or the access cookie.
//   - ErrorHandler renders every failure as {status, code, message}.
//
// Activity sinks:
//   - ActivitySink receives lifecycle events (signup, login, refresh reuse,
//     status changes, invitations). Sinks are best effort, failures are logged.
package s2s
