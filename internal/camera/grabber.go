package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/PaulBichl/roxy/internal/config"
	"github.com/PaulBichl/roxy/internal/types"
)

// Grabber is the generic fallback backend: a GStreamer pipeline pulling raw
// BGR frames from a v4l2 device into an appsink. It keeps only the most
// recent frame; Capture hands out each frame at most once and otherwise
// waits for a fresh sample.
//
// The grabber has no exposure control surface, so Reconfigure is accepted
// and logged but cannot reach the sensor. Both backends still conform to the
// same Source contract.
type Grabber struct {
	cfg config.CameraConfig

	mu       sync.Mutex
	pipeline *gst.Pipeline
	appsink  *app.Sink
	started  bool

	frameMu  sync.Mutex
	latest   *types.Frame
	lastSeen uint64 // seq of the last frame handed to Capture

	seq   uint64
	fresh chan struct{}
}

// NewGrabber creates the GStreamer fallback backend.
func NewGrabber(cfg config.CameraConfig) *Grabber {
	return &Grabber{
		cfg:   cfg,
		fresh: make(chan struct{}, 1),
	}
}

// Name identifies the backend
func (g *Grabber) Name() string { return "grabber" }

// Start builds the pipeline and waits for it to reach the playing state.
func (g *Grabber) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return fmt.Errorf("camera already started")
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("%w: failed to create pipeline: %v", ErrCameraUnavailable, err)
	}

	v4l2src, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("%w: failed to create v4l2src: %v", ErrCameraUnavailable, err)
	}
	v4l2src.SetProperty("device", g.cfg.Device)

	videoconvert, _ := gst.NewElement("videoconvert")
	videoscale, _ := gst.NewElement("videoscale")

	capsfilter, _ := gst.NewElement("capsfilter")
	caps := gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=BGR,width=%d,height=%d",
		g.cfg.Width, g.cfg.Height,
	))
	capsfilter.SetProperty("caps", caps)

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("%w: failed to create appsink: %v", ErrCameraUnavailable, err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return g.onNewSample(sink)
		},
	})

	pipeline.AddMany(v4l2src, videoconvert, videoscale, capsfilter, appsink.Element)
	gst.ElementLinkMany(v4l2src, videoconvert, videoscale, capsfilter, appsink.Element)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("%w: failed to start pipeline: %v", ErrCameraUnavailable, err)
	}

	// Confirm the device actually delivers before declaring the backend up.
	// A missing or busy v4l2 device surfaces as a bus error here.
	bus := pipeline.GetPipelineBus()
	deadline := time.Now().Add(10 * time.Second)
	for {
		if ctx.Err() != nil {
			pipeline.SetState(gst.StateNull)
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			pipeline.SetState(gst.StateNull)
			return fmt.Errorf("%w: pipeline did not reach playing state", ErrCameraUnavailable)
		}

		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			pipeline.SetState(gst.StateNull)
			return fmt.Errorf("%w: pipeline error: %s", ErrCameraUnavailable, gerr.Error())
		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				_, newState := msg.ParseStateChanged()
				if newState == gst.StatePlaying {
					g.pipeline = pipeline
					g.appsink = appsink
					g.started = true
					slog.Info("grabber backend started",
						"device", g.cfg.Device,
						"resolution", fmt.Sprintf("%dx%d", g.cfg.Width, g.cfg.Height),
					)
					return nil
				}
			}
		}
	}
}

// onNewSample stores the incoming frame as the latest and signals Capture.
func (g *Grabber) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowError
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	defer buffer.Unmap()

	if len(data) == 0 {
		return gst.FlowOK
	}

	frameData := make([]byte, len(data))
	copy(frameData, data)

	frame := types.Frame{
		Seq:       atomic.AddUint64(&g.seq, 1),
		Timestamp: time.Now(),
		Width:     g.cfg.Width,
		Height:    g.cfg.Height,
		Format:    types.FormatBGR24,
		Data:      frameData,
		TraceID:   uuid.New().String(),
	}

	g.frameMu.Lock()
	g.latest = &frame
	g.frameMu.Unlock()

	select {
	case g.fresh <- struct{}{}:
	default:
	}

	return gst.FlowOK
}

// Capture returns the next frame not yet handed out, waiting for a fresh
// sample if necessary.
func (g *Grabber) Capture(ctx context.Context) (types.Frame, error) {
	g.mu.Lock()
	started := g.started
	g.mu.Unlock()
	if !started {
		return types.Frame{}, fmt.Errorf("%w: backend not started", ErrCaptureFailed)
	}

	timeout := time.Duration(g.cfg.CaptureTimeoutS) * time.Second
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		g.frameMu.Lock()
		if g.latest != nil && g.latest.Seq > g.lastSeen {
			frame := *g.latest
			g.lastSeen = frame.Seq
			g.frameMu.Unlock()
			return frame, nil
		}
		g.frameMu.Unlock()

		select {
		case <-g.fresh:
			continue
		case <-timer.C:
			return types.Frame{}, fmt.Errorf("%w after %s", ErrCaptureTimeout, timeout)
		case <-ctx.Done():
			return types.Frame{}, fmt.Errorf("%w: %v", ErrCaptureFailed, ctx.Err())
		}
	}
}

// Reconfigure is best-effort on this backend: v4l2src exposes no portable
// exposure controls, so the request is acknowledged without device changes.
func (g *Grabber) Reconfigure(ctx context.Context, state types.ExposureState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.started {
		return fmt.Errorf("cannot reconfigure stopped camera")
	}

	slog.Info("grabber reconfigure accepted (no device-level exposure control)",
		"mode", state.Mode,
	)
	return nil
}

// Stop tears the pipeline down. Safe to call multiple times.
func (g *Grabber) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.started {
		return nil
	}

	if g.pipeline != nil {
		g.pipeline.SetState(gst.StateNull)
		g.pipeline = nil
		g.appsink = nil
	}
	g.started = false

	slog.Info("grabber backend stopped", "frames_seen", atomic.LoadUint64(&g.seq))
	return nil
}
