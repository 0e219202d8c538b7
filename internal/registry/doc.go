// Package registry records experiment runs.
//
// A Registry binds one SQLite database file and one base directory. Each
// run gets a row in the database and a folder under the base directory:
//
//	reg, err := registry.New("runs.db", "experiments")
//	id, dir, err := reg.Start(ctx, "resnet-sweep", "baseline", registry.Payload{"lr": 0.1})
//	_ = reg.Log(ctx, id, registry.Payload{"epoch": 1, "loss": 0.42})
//	_ = reg.Cleanup(ctx, id)
//
// Lifecycle:
//   - Start creates the row and folder together; on failure neither remains
//   - Log (alias Mark) replaces the metrics payload; it never merges
//   - Cleanup marks the run completed exactly once; repeats are no-ops
//
// Unknown ids passed to Log, Mark or Cleanup are ignored without error so
// logging from a training loop stays cheap. Use Lookup to check existence.
package registry
