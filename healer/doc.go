// Package healer drives the self-healing repair loop over a sandbox
// session.
//
// Each iteration runs the current files, records an immutable attempt
// snapshot, and stops on exit code zero. On failure it asks the patch
// generator for replacement files, merges only the paths the patch names,
// and tries again until the attempt budget is spent. Failures travel as
// data: install errors, non-zero exits, timeouts and unusable patches all
// consume an attempt without aborting the loop, so the caller always
// receives a full Result. A session whose budget ran out can be resumed by
// raising it and calling Heal again.
//
// Usage:
//
//	session := healer.NewSession(logger, sandboxSession, generator, files, "main.py", 3)
//	result, err := session.Heal(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Success, len(result.History))
package healer
