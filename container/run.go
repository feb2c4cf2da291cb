package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/babydragon/buildtest/relay"
	"github.com/distribution/reference"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

// RunResult describes a finished Run.
type RunResult struct {
	RunID       string
	Image       string // normalized reference that was pulled and run
	ContainerID string
	StatusCode  int64
	Exited      bool // false when the engine never reported an exit status
}

// Run pulls imageRef, runs command in a fresh container, waits for it to stop
// and removes it.
//
// When sink is non-nil and the command exits non-zero, the container's
// combined stdout/stderr (with timestamps) is forwarded to sink line by line
// before removal. Once the container exists it is force-removed on every
// return path; a removal failure is reported alongside any earlier error.
func (m *Manager) Run(ctx context.Context, imageRef string, command []string, sink relay.Sink) (res *RunResult, err error) {
	if !m.available {
		return nil, ErrEngineUnavailable
	}

	ref, err := normalizeReference(imageRef)
	if err != nil {
		return nil, err
	}

	result := &RunResult{RunID: uuid.NewString(), Image: ref}
	log := slog.With("run_id", result.RunID, "image", ref)

	log.Debug("pulling image")
	if err := m.pull(ctx, ref); err != nil {
		return nil, err
	}
	log.Debug("image pulled")

	created, err := m.engine.ContainerCreate(ctx, &container.Config{
		Image:        ref,
		Cmd:          command,
		AttachStdout: true,
		AttachStderr: true,
		Labels: map[string]string{
			LabelRunID:     result.RunID,
			LabelManagedBy: managedBy,
		},
	}, nil, nil, nil, "")
	if err != nil {
		return nil, classify("create container", err)
	}
	id := created.ID
	result.ContainerID = id
	log = log.With("container", id)
	for _, w := range created.Warnings {
		log.Warn("container create warning", "warning", w)
	}
	log.Debug("container created")

	defer func() {
		rmErr := m.remove(context.WithoutCancel(ctx), id)
		if rmErr == nil {
			log.Debug("container removed")
		} else {
			log.Warn("container removal failed", "error", rmErr)
		}

		switch {
		case err != nil && rmErr != nil:
			err = errors.Join(err, rmErr)
		case rmErr != nil:
			err = rmErr
		}
		if err != nil {
			res = nil
		}
	}()

	if err := m.engine.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, classify("start container", err)
	}
	log.Debug("container started")

	code, exited, err := m.wait(ctx, id)
	if err != nil {
		return nil, err
	}
	result.StatusCode = code
	result.Exited = exited
	if exited {
		log.Debug("container exited", "status_code", code)
	} else {
		log.Debug("container exit status unknown")
	}

	if hasSink(sink) && exited && code != 0 {
		log.Debug("container exited non-zero, fetching logs", "status_code", code)
		if err := m.forwardLogs(ctx, id, sink); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func normalizeReference(s string) (string, error) {
	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidReference, s, err)
	}
	return reference.TagNameOnly(named).String(), nil
}

// pull fetches ref and drains the progress stream. Progress output is
// discarded; an error message inside the stream fails the pull.
func (m *Manager) pull(ctx context.Context, ref string) error {
	op := "pull " + ref

	reader, err := m.engine.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return classify(op, err)
	}
	defer reader.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil); err != nil {
		return classify(op, err)
	}
	return nil
}

// wait blocks until the container is no longer running. exited is false when
// the engine closed the wait without reporting a status; that is not an
// error.
func (m *Manager) wait(ctx context.Context, id string) (code int64, exited bool, err error) {
	statusCh, errCh := m.engine.ContainerWait(ctx, id, container.WaitConditionNotRunning)

	select {
	case resp, ok := <-statusCh:
		if !ok {
			return 0, false, nil
		}
		if resp.Error != nil && resp.Error.Message != "" {
			slog.Warn("container wait reported error", "container", id, "error", resp.Error.Message)
		}
		return resp.StatusCode, true, nil
	case werr := <-errCh:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, false, classify("wait container", ctxErr)
		}
		if werr != nil {
			slog.Warn("container wait yielded no status", "container", id, "error", werr)
		}
		return 0, false, nil
	case <-ctx.Done():
		return 0, false, classify("wait container", ctx.Err())
	}
}

// forwardLogs streams the container's stdout and stderr, in the order the
// engine interleaved them, to sink one line at a time.
func (m *Manager) forwardLogs(ctx context.Context, id string, sink relay.Sink) error {
	const op = "fetch logs"

	reader, err := m.engine.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
	})
	if err != nil {
		return classify(op, err)
	}
	defer reader.Close()

	w := newLineWriter(ctx, sink)
	if _, err := stdcopy.StdCopy(w, w, reader); err != nil {
		return classify(op, err)
	}
	return classify(op, w.Flush())
}

func (m *Manager) remove(ctx context.Context, id string) error {
	err := m.engine.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	return classify("remove container "+id, err)
}
