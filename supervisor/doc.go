// Package supervisor implements the Communications Supervisor: the per-stage process that owns
// one Worker's lifetime and is the only path between the graph fabric and that Worker.
//
// # Channels
//
// For a stage with base port P the Supervisor holds six sockets:
//
//	data in     SUB  -> Data Forwarder outbound, one prefix subscription per receiving topic
//	data out    PUB  -> Data Forwarder inbound
//	parameters  SUB  -> Parameter Forwarder outbound, subscribed to the stage topic (observed only)
//	to worker   PUSH -> P     (Worker binds PULL)
//	from worker PULL <- P+1   (Worker connects PUSH)
//	heartbeat   PUSH -> P+2   (Worker binds PULL)
//
// The fabric-facing sockets and the PULL on P+1 are opened before the Worker is spawned; any
// failure there makes Run return without spawning it. The two PUSH sockets are dialed after the
// spawn, because the Worker binds their endpoints. A failure to connect them kills the Worker.
// Either way every socket that was already opened is closed again.
//
// # Relay
//
// Upstream messages are forwarded to the Worker unchanged. Worker output k arrives with topic
// "k" and is re-published on the k-th sending topic. Both directions keep at most one pending
// message per topic; a newer message for the same topic replaces the pending one.
//
// # Heartbeat
//
// A dedicated goroutine pushes a pulse every heartbeat period. It never waits on the relay, so a
// stalled data path cannot starve the Worker of pulses.
//
// # Lifetime
//
// When the Worker process exits the Supervisor tears down and Run returns ErrWorkerExited; the
// stage pair disappears together and the graph owner restarts it. When ctx is cancelled the
// Worker is asked to stop, every socket is closed and Run returns nil.
package supervisor
