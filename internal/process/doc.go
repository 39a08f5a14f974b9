// Package process tracks long-running device operations as cancellable,
// queryable background processes.
//
// A Process wraps one unit of Work (a slew, a meridian flip, an autofocus
// run) together with its Type. Types form a closed catalog with a symmetric
// conflict relation; the Registry refuses to start a process while a
// conflicting one is running.
//
// Lifecycle:
//
//	Pending --Start--> Running --work returns nil / is cancelled--> Finished
//	                           --work returns an error / panics---> Failed
//
// Processes are single-use. Starting a process that is Running or already
// terminal reports AlreadyRunning and never re-executes the work.
//
// Example usage:
//
//	reg := process.NewRegistry(process.RegistryConfig{Retention: 30 * time.Minute})
//	id := reg.Add(work, process.DomeOpenShutter)
//
//	switch res := reg.Start(id); res.Outcome {
//	case process.Started, process.AlreadyRunning:
//	    // ok
//	case process.Conflict:
//	    // res.Conflicts lists the running processes in the way
//	case process.NotFound:
//	}
package process
