package container

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/babydragon/buildtest/internal/buildctx"
	"github.com/babydragon/buildtest/relay"
	"github.com/distribution/reference"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/jsonmessage"
	units "github.com/docker/go-units"
)

// BuildRequest is an image build: the tag to apply and the gzip build
// context holding the Dockerfile.
type BuildRequest struct {
	ImageName string
	Context   []byte
	BuildArgs map[string]*string
	Labels    map[string]string
}

// NewBuildRequest validates imageName and packages dockerfile as the build
// context.
func NewBuildRequest(imageName, dockerfile string) (BuildRequest, error) {
	if _, err := reference.ParseNormalizedNamed(imageName); err != nil {
		return BuildRequest{}, fmt.Errorf("%w %q: %v", ErrInvalidReference, imageName, err)
	}

	archive, err := buildctx.Archive(dockerfile)
	if err != nil {
		return BuildRequest{}, err
	}

	return BuildRequest{ImageName: imageName, Context: archive}, nil
}

// BuildEventKind tells which field of an engine build message an event
// came from.
type BuildEventKind int

const (
	EventStream BuildEventKind = iota // incremental build output
	EventStatus                       // engine status message
)

func (k BuildEventKind) String() string {
	switch k {
	case EventStream:
		return "stream"
	case EventStatus:
		return "status"
	default:
		return fmt.Sprintf("BuildEventKind(%d)", int(k))
	}
}

// BuildEvent is one piece of text from a build, tagged with its origin.
type BuildEvent struct {
	Kind BuildEventKind
	Text string
}

// buildEvents splits one engine message into its events: the stream text
// first, then the status text. Either may be absent.
func buildEvents(msg jsonmessage.JSONMessage) []BuildEvent {
	var events []BuildEvent
	if msg.Stream != "" {
		events = append(events, BuildEvent{Kind: EventStream, Text: msg.Stream})
	}
	if msg.Status != "" {
		events = append(events, BuildEvent{Kind: EventStatus, Text: msg.Status})
	}
	return events
}

// Build builds the Manager's Dockerfile and tags the result imageName.
// Build output is forwarded to sink when it is non-nil.
func (m *Manager) Build(ctx context.Context, imageName string, sink relay.Sink) error {
	req, err := NewBuildRequest(imageName, m.dockerfile)
	if err != nil {
		return err
	}
	return m.BuildImage(ctx, req, sink)
}

// BuildImage runs req on the engine, always pulling the base image and
// removing intermediate containers. Every stream and status text the engine
// reports is forwarded to sink in arrival order. The first transport error,
// engine error or sink failure ends the build; text already forwarded stays
// delivered.
func (m *Manager) BuildImage(ctx context.Context, req BuildRequest, sink relay.Sink) error {
	if !m.available {
		return ErrEngineUnavailable
	}

	op := "build " + req.ImageName
	slog.Debug("building image",
		"image", req.ImageName,
		"context_size", units.HumanSize(float64(len(req.Context))),
	)

	resp, err := m.engine.ImageBuild(ctx, bytes.NewReader(req.Context), types.ImageBuildOptions{
		Tags:       []string{req.ImageName},
		Dockerfile: buildctx.DescriptorName,
		PullParent: true,
		Remove:     true,
		BuildArgs:  req.BuildArgs,
		Labels:     req.Labels,
	})
	if err != nil {
		return classify(op, err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return classify(op, err)
		}

		if msg.Error != nil {
			return classify(op, msg.Error)
		}

		if msg.Aux != nil {
			var aux struct {
				ID string `json:"ID"`
			}
			if err := json.Unmarshal(*msg.Aux, &aux); err == nil && aux.ID != "" {
				slog.Debug("image built", "image", req.ImageName, "id", aux.ID)
			}
		}

		for _, ev := range buildEvents(msg) {
			if err := forward(ctx, sink, ev.Text); err != nil {
				return classify(op, err)
			}
		}
	}

	slog.Debug("image build finished", "image", req.ImageName)
	return nil
}
