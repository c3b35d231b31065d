// Package subscription implements the per-connector Subscription Registry.
//
// The registry is an id-keyed arena of active subscriptions for one socket:
// subscribe returns a generated id, dispatch fans a decoded event out to
// every subscription whose channel kind (and symbol, when one was given)
// matches, and unsubscribe of an unknown id is a logged no-op. It never
// touches the network; sending SUBSCRIPTION envelopes is the owner's job.
package subscription
