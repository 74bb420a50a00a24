// Package realtime provides the persistent binding and exec layer of the
// Gray Logic client.
//
// A Session holds one logical connection to Core's control socket and
// multiplexes every caller over it:
//   - bindings: live subscriptions to named status variables on module
//     instances, delivered as multicast value streams with replay of the
//     latest value for late listeners
//   - exec: remote procedure calls against module instances, resolved by
//     matching response frames to monotonically numbered requests
//
// # Architecture
//
//	caller ──▶ Session ──▶ request table ──▶ Transport (websocket or mock)
//	                          ▲                    │
//	                          │                    ▼
//	               binding table ◀── dispatcher ◀── inbound frames
//
// The connection is self-healing: transport failures are recovered with
// bounded backoff and are surfaced only on the Status stream, never as
// errors on Bind/Exec callers. Only an explicit error frame for a specific
// request rejects that request.
//
// # Transports
//
// The live transport dials Core's control route over WebSocket. The mock
// transport serves the same frame contract from an in-memory MockRegistry,
// so caller code and tests are transport-agnostic. Both feed the same
// dispatcher.
//
// # Usage
//
//	store := auth.NewStore(token)
//	session := realtime.New(store, realtime.WithLogger(log))
//
//	if err := session.Connect(ctx); err != nil {
//	    return err
//	}
//	defer session.Cleanup()
//
//	id := realtime.Identity{System: "sys-1", Module: "Lighting", Index: 1, Name: "power"}
//	sub := session.Listen(id)
//	defer sub.Close()
//
//	if err := session.Bind(ctx, id); err != nil {
//	    return err
//	}
//	for v := range sub.C() {
//	    log.Info("power changed", "value", v)
//	}
package realtime
