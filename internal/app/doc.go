// Package app orchestrates the device use cases that span the key vault,
// the ledger and the outbound credential services.
//
// Responsibilities:
// - Register and reset the device DID.
// - Submit payment-account calls.
// - Forward base claims to the attester and keep a local copy.
//
// Non-responsibilities:
// - HTTP routing, cookies and status mapping (see internal/api).
package app
