// Package equipment executes device commands on behalf of processes.
//
// A Commander runs one Command to completion, reporting typed progress on
// the way. BusCommander sends commands to the host application over the
// message bus and waits for its result; SimulatedCommander runs them
// against an in-memory observatory for development.
//
// NewWork binds a process type to its device command so the registry can
// run it:
//
//	work := equipment.NewWork(commander, process.AutoFocus, nil)
//	id := registry.Add(work, process.AutoFocus)
//
// Bus protocol, relative to the topic prefix:
//
//	command/{device}/{action}      bridge -> host   Command JSON
//	command/{device}/abort         bridge -> host   {"request_id": "..."}
//	command/progress/{request_id}  host -> bridge   progress snapshot JSON
//	command/result/{request_id}    host -> bridge   Result JSON
package equipment
