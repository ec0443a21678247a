// Package docstream is a client for a document-processing backend whose
// long-running operations (template verification, mapping approval, AI agent
// execution) report progress asynchronously.
//
// A task is started once and then watched over one of three interchangeable
// transports: a chunked ND-JSON response body, a push event stream (SSE or
// WebSocket), or interval polling. All three converge on the same contract:
// zero or more progress notifications in arrival order, then exactly one
// terminal outcome, with cooperative cancellation throughout.
//
//	client, err := docstream.New(docstream.Config{BaseURL: "https://docs.example.com"})
//	if err != nil { ... }
//	task, err := client.Start(ctx, docstream.StartRequest{Operation: "verify_template"}, docstream.StartOptions{})
//	if err != nil { ... }
//	final, err := client.Watch(ctx, task.ID, docstream.WatchOptions{
//		Transport:  docstream.TransportChunked,
//		OnProgress: func(p docstream.Progress) { render(p) },
//	})
package docstream
