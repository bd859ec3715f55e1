// Package identity resolves wallet addresses to UDP omnikey identities.
//
// The flow is a single sequential call chain against the remote identity
// service: a best-effort existence probe, a create request when the probe
// comes back empty, a settle delay while the remote side provisions
// asynchronously, then a bounded fetch loop with fixed inter-attempt waits.
// The remote convention for "no identity yet" is the sentinel string "0",
// which is normalized away at the decode boundary and never seen by callers.
package identity
