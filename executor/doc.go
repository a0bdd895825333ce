// Package executor compiles guest programs and runs them as host modules.
//
// # Overview
//
// An [Executor] owns one shared environment per [mode.Mode], created on
// first use. Every unit compiled in a mode runs in that mode's environment,
// so units see each other's globals. Guest output is forwarded to the host
// writers once per channel, however many engines share it.
//
// # Basic Usage
//
//	exec, err := executor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	res, err := exec.EvaluateSync(ctx, []byte(`echo("hello")`), "")
//
// # Modes
//
// Sync entry points return results directly. In async mode executions are
// queued on the environment and futures settle as they finish; promise-sync
// runs inline but returns settled futures:
//
//	f := exec.Evaluate(ctx, []byte(`exit(3)`), "")
//	res, err := f.Await(ctx) // res.Type() == "exit", res.Status() == 3
//
// # Bootstraps and Host Modules
//
// Bootstrap files run once, in order, before the loader for guest files is
// installed by Register. A bootstrap calling exit stops the sequence:
//
//	exec, _ := executor.New(executor.WithBootstraps("init.star", "routes.star"))
//	if _, err := exec.Register(ctx); err != nil { ... }
//	mod, err := exec.Load("app.star")
//
// # Sessions
//
// Sessions evaluate snippets in the sync environment and capture output:
//
//	session, _ := exec.NewSession()
//	session.Run(ctx, `x = 42`)
//	session.Run(ctx, `echo(x)`) // Output: 42
package executor
