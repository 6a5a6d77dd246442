// Package async runs background work without letting a panic or a slow
// collaborator take the caller down.
//
//	g := async.NewGroup(log)
//	g.Go(ctx, 5*time.Second, "audit record", func(ctx context.Context) error {
//		return sink.Record(ctx, entry)
//	})
//	g.Wait()
//
// Run is the synchronous form and reports panics as *PanicError.
package async
