// Package shutdown coordinates graceful teardown of the annotation
// daemon.
//
// Components register handlers in phases: the HTTP server drains first
// (PhaseServer), then the event bus disconnects (PhaseBus), then the
// task and annotation stores close (PhaseStores). Handlers in the same
// phase run concurrently; the whole sequence is bounded by a timeout.
//
//	coord := shutdown.NewCoordinator(shutdown.WithTimeout(15 * time.Second))
//	coord.RegisterFunc("http", srv.Shutdown, shutdown.PhaseServer)
//	coord.RegisterFunc("bus", func(context.Context) error { return bus.Close() }, shutdown.PhaseBus)
//	coord.HandleSignals()
//	<-coord.Done()
package shutdown
