// Package auth persists the email identities of user accounts and issues the
// signed vouchers that prove control of an address.
//
// Email identities:
//   - UserEmails.Insert stores a NewEmailIdentity as a pending primary row. It
//     issues one statement, logs it, and reports failure as a nil result.
//   - UserEmails.GrantActivationVoucher draws a fresh secret, signs it into a
//     time bound voucher, and stores the secret and expiry on the row. A later
//     grant supersedes the earlier one.
//
// Vouchers:
//   - ClaimsEncoder signs HS256 tokens carrying the secret as subject, the
//     purpose as audience and the key id in the "kid" header. ActivationClaims
//     and AuthorizationClaims fix the purpose and lifetime.
//   - ActivationRedeemer verifies a voucher against the stored secret and moves
//     the identity from pending to active through EmailStateMachine.
//
// Activity sinks:
//   - ActivitySink receives lifecycle events best-effort (errors are logged),
//     see the activitymap package for a transport-agnostic shape.
package auth
