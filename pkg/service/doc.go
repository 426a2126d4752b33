// Package service composes a runnable notification server.
//
// A Service wires the store, the subscription registry, the session binder,
// the authorization rules, the event dispatcher and the websocket transport
// together and serves them over HTTP:
//
//	cfg := config.Default()
//	svc, err := service.New(cfg, service.Options{Logger: logger})
//	if err != nil {
//		return err
//	}
//	return svc.Run(ctx)
//
// Writes go through Put and Delete (or any store the caller shares via
// Options.Store); committed changes reach the dispatcher through the store's
// publisher hook. Publish feeds events from other write paths.
//
// # HTTP
//
//	<websocket_path>   notification websocket (default /ws)
//	/healthz           JSON health summary
//
// When discovery is enabled the endpoint is advertised over mDNS for the
// lifetime of the service.
package service
