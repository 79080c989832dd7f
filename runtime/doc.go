// Package runtime provides container lifecycle and exec adapters.
//
// The runtime package defines the Runtime interface the sandbox session is
// built on: ensure a named long-lived container is running, copy a staged
// directory into its workspace, run commands under a timeout, and destroy
// it. Backends include the docker and podman CLIs, the Docker Engine API,
// and a host-local backend for development.
//
// Exec never turns a non-zero exit into an error; results come back as
// data, and a command cut off by its timeout yields the reserved exit
// code 124. Errors are reserved for the runtime being unreachable.
//
// Usage:
//
//	rt, err := runtime.New(logger, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = rt.EnsureRunning(ctx, "mendbox-1a2b3c4d")
//	res, err := rt.Exec(ctx, "mendbox-1a2b3c4d", []string{"python", "main.py"}, 30*time.Second)
package runtime
