// Package entity reconciles records against a query: update the matches,
// create a record when there are none, or do nothing.
//
// Reconcile, Fetch and Delete stage changes in a session.Session and
// return an Update handle; nothing is committed until the caller calls
// Update.Commit or Session.Save.
//
// Read failures degrade to "no matching records". The failure is never
// dropped: it is carried on FetchResult.Degraded and Update.Degraded and
// logged at warn level, so callers and tests can observe it.
package entity
