/*
Package forwarder implements Heron's three relay processes: the Data, Parameter and Liveness
forwarders.

A Forwarder binds one inbound address (producers connect PUB sockets to it) and one outbound
address (consumers connect SUB sockets with topic filters). Every message arriving inbound is
written unmodified to the outbound side; consumers only receive topics matching their filter.

	producers ─PUB→ [inbound SUB] → mailbox(topic) → [outbound PUB] ─→ SUB consumers

# Backpressure

Between the two sockets sits a depth-1 mailbox per topic (see internal/mailbox). If the outbound
side cannot keep up, the unconsumed message of a topic is overwritten by the newer one, so a slow
consumer observes only the newest message and never a backlog. The same policy applies to all
three forwarders, since parameters and liveness only care about the latest value.

A Forwarder holds no business logic: it reads the first frame as the topic key and nothing else.

# Usage

	f := forwarder.New(forwarder.Data, fabric,
		cfg.Endpoint(cfg.Forwarders.Data.Submit),
		cfg.Endpoint(cfg.Forwarders.Data.Publish),
		forwarder.WithLogger(log))
	err := f.Run(ctx) // blocks until ctx is done

RunAll starts the three forwarders of a configuration under one errgroup.
*/
package forwarder
