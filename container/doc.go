// Package container drives a Docker engine to build images and run one-shot
// commands, relaying diagnostic text to an optional [relay.Sink].
//
// # Overview
//
//   - Manager: connects to the engine (DOCKER_HOST, Docker Desktop, the
//     default Linux socket, Colima) and exposes Build and Run
//   - Engine: the narrow slice of the Docker client the Manager uses; tests
//     substitute a fake through WithEngine
//
// # Build
//
// Build packages the configured Dockerfile into a build context, asks the
// engine to build it (always pulling the base image, always removing
// intermediate containers) and forwards every "stream" and "status" field of
// the engine's progress messages to the sink, in arrival order.
//
// # Run
//
// Run walks a container through pull, create, start and wait. When a sink is
// configured and the command exits non-zero, the container's combined
// stdout/stderr log (with timestamps) is forwarded line by line. The
// container is force-removed on every path once it has been created.
//
// # Errors
//
// Engine failures are returned as *EngineError and match [ErrTransport] or
// [ErrEngineRejection] with errors.Is. A sink that can no longer accept text
// surfaces as [relay.ErrSinkClosed]. Nothing is retried.
//
// # Example
//
//	m, err := container.NewManager()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	r, tx := relay.New(relay.DefaultCapacity)
//	go r.Drain(ctx, relay.NewWriterHandler(os.Stdout))
//
//	if err := m.Build(ctx, "demo", tx); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := m.Run(ctx, "alpine:3.15", []string{"echo", "in container"}, tx); err != nil {
//	    log.Fatal(err)
//	}
//	tx.Close()
package container
