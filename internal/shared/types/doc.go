// Package types holds the value types shared by the engine, its
// collaborators and the admin server.
//
// Core Types:
//   - Identity: (user, package) key of an application
//   - GroupState: lifecycle state of an application
//   - ProcessInfo, VisibilityEvent: inbound supervisor reports
//   - PackageMetadata: what the package collaborator returns
//   - Verdict: the answer to a score proposal
//   - Stats: engine statistics
package types
