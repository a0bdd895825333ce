// Package engine is the guest runtime: it runs compiled Starlark units inside
// shared environments, one environment per concurrency mode.
//
// An [Environment] holds everything guest units have in common: addon
// bindings, the globals assigned by previously executed units, settings,
// and the stdout and stderr [Channel]s. A [Unit] is produced by the
// transpiler; binding it to an environment yields a [ModuleFactory] whose
// [Engine]s execute it.
//
// # Scheduling
//
// Sync and promise-sync environments run one top-level execution at a time
// under a mutex. Async environments run top-level executions on a FIFO
// queue, so units execute in submission order and never in parallel.
// Nested executions started by guest code (include, require, load) run
// inline on the calling Starlark thread.
//
// # Results
//
// A unit whose last top-level statement is an expression or a return yields
// that value. Calling exit(status) ends the whole execution chain and yields
// an exit [Result] instead of an error.
package engine
