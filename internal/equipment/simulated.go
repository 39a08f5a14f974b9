package equipment

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strings"
	"time"

	"github.com/nerrad567/astrobridge/internal/bus"
	"github.com/nerrad567/astrobridge/internal/dispatch"
	"github.com/nerrad567/astrobridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/astrobridge/internal/process"
)

// Simulation constants.
const (
	autoFocusSteps    = 9
	autoFocusStepSize = 100
	autoFocusBestHFR  = 1.8
	failParam         = "simulate_failure"
	resetTimeout      = 5 * time.Second
)

// DeviceState is the simulated state of one device.
type DeviceState struct {
	Device     string         `json:"Device"`
	Connected  bool           `json:"Connected"`
	Busy       bool           `json:"Busy"`
	LastAction string         `json:"LastAction,omitempty"`
	Properties map[string]any `json:"Properties"`
}

type effect func(props, params map[string]any)

var effects = map[string]effect{
	"camera/cool": func(props, params map[string]any) {
		props["cooler_on"] = true
		props["temperature_c"] = numberParam(params, "temperature", -10)
	},
	"camera/warm": func(props, _ map[string]any) {
		props["cooler_on"] = false
		props["temperature_c"] = 20.0
	},
	"camera/capture": func(props, _ map[string]any) {
		props["exposures"] = numberParam(props, "exposures", 0) + 1
	},
	"dome/open-shutter":  func(props, _ map[string]any) { props["shutter"] = "open" },
	"dome/close-shutter": func(props, _ map[string]any) { props["shutter"] = "closed" },
	"dome/park":          func(props, _ map[string]any) { props["parked"] = true },
	"dome/home": func(props, _ map[string]any) {
		props["parked"] = false
		props["azimuth"] = 0.0
	},
	"dome/slew": func(props, params map[string]any) {
		props["parked"] = false
		props["azimuth"] = numberParam(params, "azimuth", 0)
	},
	"mount/slew": func(props, params map[string]any) {
		props["parked"] = false
		props["ra"] = numberParam(params, "ra", 0)
		props["dec"] = numberParam(params, "dec", 0)
	},
	"mount/park": func(props, _ map[string]any) { props["parked"] = true },
	"mount/home": func(props, _ map[string]any) { props["parked"] = false },
	"mount/meridian-flip": func(props, _ map[string]any) {
		if props["pier_side"] == "west" {
			props["pier_side"] = "east"
		} else {
			props["pier_side"] = "west"
		}
	},
	"focuser/move": func(props, params map[string]any) {
		props["position"] = numberParam(params, "position", numberParam(props, "position", 0))
	},
	"focuser/autofocus": func(props, _ map[string]any) { props["hfr"] = autoFocusBestHFR },
	"filterwheel/change": func(props, params map[string]any) {
		if f, ok := params["filter"].(string); ok {
			props["filter"] = f
		}
	},
	"rotator/move": func(props, params map[string]any) {
		props["angle"] = math.Mod(numberParam(params, "angle", 0), 360)
	},
	"guider/start":     func(props, _ map[string]any) { props["guiding"] = true },
	"guider/calibrate": func(props, _ map[string]any) { props["calibrated"] = true },
	"flatpanel/toggle": func(props, _ map[string]any) {
		on, _ := props["light_on"].(bool)
		props["light_on"] = !on
	},
	"platesolver/solve": func(props, _ map[string]any) {
		props["solves"] = numberParam(props, "solves", 0) + 1
	},
}

// SimulatedCommander runs commands against an in-memory observatory.
//
// Device state is owned by the dispatcher goroutine and only touched inside
// Invoke. When a bus is attached, completed commands are announced on the
// equipment and info topics the same way a real host would.
type SimulatedCommander struct {
	dispatcher *dispatch.Dispatcher
	duration   time.Duration
	bus        bus.Bus
	topics     mqtt.Topics
	logger     Logger

	// Owned by the dispatcher goroutine.
	devices map[string]*DeviceState
	active  map[string]int
}

// NewSimulatedCommander creates a simulator whose commands each take
// duration. Devices start connected with default state.
func NewSimulatedCommander(d *dispatch.Dispatcher, duration time.Duration) *SimulatedCommander {
	s := &SimulatedCommander{
		dispatcher: d,
		duration:   duration,
		logger:     noopLogger{},
		devices:    make(map[string]*DeviceState),
		active:     make(map[string]int),
	}
	for _, t := range process.Types() {
		if _, ok := s.devices[t.Device()]; !ok {
			s.devices[t.Device()] = &DeviceState{Device: t.Device(), Connected: true, Properties: defaultProperties(t.Device())}
		}
	}
	return s
}

func defaultProperties(device string) map[string]any {
	switch device {
	case "camera":
		return map[string]any{"cooler_on": false, "temperature_c": 20.0, "exposures": 0.0}
	case "dome":
		return map[string]any{"shutter": "closed", "parked": true, "azimuth": 0.0}
	case "mount":
		return map[string]any{"parked": true, "pier_side": "east", "ra": 0.0, "dec": 0.0}
	case "focuser":
		return map[string]any{"position": 10000.0, "hfr": 3.2}
	case "filterwheel":
		return map[string]any{"filter": "L"}
	default:
		return map[string]any{}
	}
}

// SetBus announces completed commands on b under topics.
func (s *SimulatedCommander) SetBus(b bus.Bus, topics mqtt.Topics) {
	s.bus = b
	s.topics = topics
}

// SetLogger sets the logger.
func (s *SimulatedCommander) SetLogger(l Logger) {
	if l != nil {
		s.logger = l
	}
}

// Execute simulates cmd. A true "simulate_failure" param makes it fail.
func (s *SimulatedCommander) Execute(ctx context.Context, cmd Command, progress ProgressFunc) error {
	// Read and written only on the dispatcher goroutine. The claim can
	// still run after Invoke gave up on ctx, and the release that follows
	// it in the queue undoes it.
	claimed := false
	runErr := s.dispatcher.Invoke(ctx, func() error {
		st, ok := s.devices[cmd.Device]
		if !ok {
			return fmt.Errorf("%w: unknown device %q", ErrCommandFailed, cmd.Device)
		}
		claimed = true
		s.active[cmd.Device]++
		st.Busy = true
		st.LastAction = cmd.Action
		return nil
	})
	started := runErr == nil

	if started {
		runErr = s.run(ctx, cmd, progress)
		if runErr == nil {
			if fail, _ := cmd.Params[failParam].(bool); fail {
				runErr = fmt.Errorf("%w: %s/%s: simulated failure", ErrCommandFailed, cmd.Device, cmd.Action)
			}
		}
	}

	// ctx may already be cancelled; the device must still go idle.
	finishCtx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()

	var snapshot DeviceState
	err := s.dispatcher.Invoke(finishCtx, func() error {
		if !claimed {
			return nil
		}
		st := s.devices[cmd.Device]
		s.active[cmd.Device]--
		st.Busy = s.active[cmd.Device] > 0
		if runErr == nil {
			if apply, ok := effects[cmd.Device+"/"+cmd.Action]; ok {
				apply(st.Properties, cmd.Params)
			}
		}
		snapshot = copyState(st)
		return nil
	})
	if err != nil {
		s.logger.Warn("resetting simulated device failed", "device", cmd.Device, "error", err)
	}

	if started && runErr == nil && err == nil {
		s.announce(cmd, snapshot)
	}
	return runErr
}

func (s *SimulatedCommander) run(ctx context.Context, cmd Command, progress ProgressFunc) error {
	report := func(v any) {
		if progress != nil {
			progress(v)
		}
	}

	switch cmd.Action {
	case process.AutoFocus.Action():
		step := s.duration / autoFocusSteps
		center := 10000
		for i := range autoFocusSteps {
			offset := i - autoFocusSteps/2
			report(process.AutoFocusProgress{
				Step:       i + 1,
				TotalSteps: autoFocusSteps,
				Position:   center + offset*autoFocusStepSize,
				HFR:        autoFocusBestHFR + 0.15*float64(offset*offset),
				Filter:     stringParam(cmd.Params, "filter"),
			})
			if err := sleep(ctx, step); err != nil {
				return err
			}
		}
		return nil

	case process.MeridianFlip.Action():
		step := s.duration / time.Duration(len(process.FlipPhases))
		for i, phase := range process.FlipPhases {
			remaining := step * time.Duration(len(process.FlipPhases)-i)
			report(process.MeridianFlipProgress{Phase: phase, RemainingSeconds: remaining.Seconds()})
			if err := sleep(ctx, step); err != nil {
				return err
			}
		}
		return nil

	default:
		return sleep(ctx, s.duration)
	}
}

func (s *SimulatedCommander) announce(cmd Command, state DeviceState) {
	if s.bus == nil {
		return
	}

	evt, _ := json.Marshal(map[string]any{ //nolint:errcheck // Plain strings always marshal
		"request_id": cmd.RequestID,
		"action":     cmd.Action,
	})
	if err := s.bus.Publish(s.topics.Equipment(cmd.Device, cmd.Action+"-completed"), evt); err != nil {
		s.logger.Warn("announcing simulated command failed", "device", cmd.Device, "error", err)
	}

	info, err := json.Marshal(state)
	if err != nil {
		s.logger.Warn("encoding simulated device state failed", "device", cmd.Device, "error", err)
		return
	}
	if err := s.bus.Publish(s.topics.Info(cmd.Device), info); err != nil {
		s.logger.Warn("publishing simulated device info failed", "device", cmd.Device, "error", err)
	}
}

// Snapshot returns a copy of every simulated device, read on the
// dispatcher goroutine.
func (s *SimulatedCommander) Snapshot(ctx context.Context) (map[string]DeviceState, error) {
	out := make(map[string]DeviceState)
	err := s.dispatcher.Invoke(ctx, func() error {
		for name, st := range s.devices {
			out[name] = copyState(st)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func copyState(st *DeviceState) DeviceState {
	c := *st
	c.Properties = maps.Clone(st.Properties)
	return c
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func numberParam(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return strings.TrimSpace(s)
}
