// Package executors is the entry point the surrounding task runner uses to turn executor
// references into runnable handles. It wires the resolver stack once (`BuildResolver`), resolves
// batches of references concurrently (`ResolveAll`) and renders the one-line summary printed after
// a batch, while unit tests can swap in fake resolvers.
package executors
