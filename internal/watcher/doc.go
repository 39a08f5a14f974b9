// Package watcher turns host activity into broadcaster events.
//
// A Watcher subscribes to its sources in StartWatchers, releases them in
// StopWatchers, and calls SubmitAndStoreEvent or SubmitEvent for every
// observation. The Manager starts and stops a set of watchers together.
//
// Two watchers ship with the bridge:
//
//   - ProcessWatcher reports process start and finish on the Process channel.
//   - TopicWatcher routes host bus topics to the domain and info channels.
package watcher
