// Package relval defines the relval entities and their workflows on top of
// the generic controller.
//
// # Entities
//
//   - campaigns: top level grouping, identified by the client
//   - subcampaigns: belong to a campaign and carry release defaults
//   - tickets: batches of input datasets, `<subcampaign>-NNNNN`
//   - requests: one processing request, `<subcampaign>[-<processing string>]-NNNNN`
//
// Resolving a ticket creates one request per input dataset. Approved
// requests are submitted through the [Submitter], which runs the remote call
// on a background worker while holding the request lock throughout.
//
// A [System] wires every controller to one [store.Backend] and is the
// cross-entity existence check used by the veto hooks.
package relval
