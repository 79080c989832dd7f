// Package sandbox executes a project's files inside an isolated, reusable
// container session.
//
// A Session owns one named container for its lifetime and composes the
// package's pieces into a single Run operation: synchronize the FileSet
// into the container workspace, resolve and install dependencies, then run
// the entry point (or the test suite when test files are present). Repair
// iterations reuse the same container, so file pushes are incremental
// overlays and dependency installs are skipped while the manifest hash is
// unchanged and a sentinel import still succeeds.
//
// Failures travel as data: a failing install or execution comes back as a
// runtime.ExecResult with a non-zero exit code. The only errors Run returns
// are ErrEntryPointMissing and the runtime being unreachable.
//
// Usage:
//
//	session := sandbox.NewSession(logger, rt, cfg)
//	defer session.Destroy(ctx)
//
//	res, err := session.Run(ctx, files, "main.py")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Stdout)
package sandbox
