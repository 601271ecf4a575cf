// Package command decodes control-channel lines into configuration changes
// or retrieval requests. One line in, one or more lines out, synchronously.
package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tracklog/internal/rtc"
	"tracklog/internal/scheduler"
	"tracklog/internal/wire"
)

// Retriever starts a bulk retrieval on the control channel.
type Retriever interface {
	Stream(out wire.LineWriter) error
}

type Dispatcher struct {
	state     *scheduler.State
	clock     rtc.Clock
	retriever Retriever
}

func New(state *scheduler.State, clock rtc.Clock, retriever Retriever) *Dispatcher {
	return &Dispatcher{state: state, clock: clock, retriever: retriever}
}

// Dispatch handles one request line and writes the response. Validation
// failures produce an Error: line and leave state untouched; they are not
// channel errors. The returned error is a transport failure only.
func (d *Dispatcher) Dispatch(line string, out wire.LineWriter) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	switch {
	case line == "log":
		return d.retriever.Stream(out)
	case line == "status":
		return d.status(out)
	case line == "time":
		return out.WriteLine(wire.PrefixCurrentTime + " " + wire.Stamp(d.clock.Now()))
	case line == "trips":
		return out.WriteLine("Not implemented: trip reports")
	case line == "violations":
		return out.WriteLine("Not implemented: violation reports")
	case line == "reset":
		d.state.Reset()
		return out.WriteLine("Counters reset")
	case strings.HasPrefix(line, "set-speed-limit="):
		return d.setSpeedLimit(strings.TrimPrefix(line, "set-speed-limit="), out)
	case strings.HasPrefix(line, "set-limp-speed="):
		return d.setLimpSpeed(strings.TrimPrefix(line, "set-limp-speed="), out)
	case strings.HasPrefix(line, "set-time="):
		return d.setTime(strings.TrimPrefix(line, "set-time="), out)
	default:
		return out.WriteLine("Unknown command")
	}
}

func (d *Dispatcher) status(out wire.LineWriter) error {
	lines := []string{
		fmt.Sprintf("Speed limit: %d km/h", d.state.SpeedLimitKmh),
		fmt.Sprintf("Limp speed: %d km/h", d.state.LimpSpeedKmh),
		fmt.Sprintf("Records logged: %d", d.state.RecordsLogged),
		"Speed limit exceeded: " + yesNo(d.state.SpeedLimitExceeded),
	}
	if d.state.AppendFailures > 0 {
		lines = append(lines, fmt.Sprintf("Append failures: %d (last: %s)", d.state.AppendFailures, d.state.LastAppendError))
	}
	for _, l := range lines {
		if err := out.WriteLine(l); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) setSpeedLimit(arg string, out wire.LineWriter) error {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n <= 0 || n >= 200 {
		return out.WriteLine("Error: speed limit must be between 1 and 199 km/h")
	}
	d.state.SpeedLimitKmh = n
	return out.WriteLine(fmt.Sprintf("Speed limit set to %d km/h", n))
}

func (d *Dispatcher) setLimpSpeed(arg string, out wire.LineWriter) error {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n <= 0 || n >= d.state.SpeedLimitKmh {
		return out.WriteLine(fmt.Sprintf("Error: limp speed must be between 1 and %d km/h", d.state.SpeedLimitKmh-1))
	}
	d.state.LimpSpeedKmh = n
	return out.WriteLine(fmt.Sprintf("Limp speed set to %d km/h", n))
}

func (d *Dispatcher) setTime(arg string, out wire.LineWriter) error {
	arg = strings.TrimSpace(arg)
	arg = strings.Trim(arg, `"`)
	t, ok := parseTimeArg(arg)
	if !ok {
		return out.WriteLine("Error: time must be YYYY-MM-DD HH:MM:SS")
	}
	if err := d.clock.SetTime(t); err != nil {
		return out.WriteLine(wire.PrefixError + " " + err.Error())
	}
	return out.WriteLine("Time set to " + wire.Stamp(t))
}

// parseTimeArg accepts exactly six integer components in
// "YYYY-MM-DD HH:MM:SS" order.
func parseTimeArg(arg string) (time.Time, bool) {
	var y, mo, da, h, mi, se int
	n, err := fmt.Sscanf(arg, "%d-%d-%d %d:%d:%d", &y, &mo, &da, &h, &mi, &se)
	if err != nil || n != 6 {
		return time.Time{}, false
	}
	if mo < 1 || mo > 12 || da < 1 || da > 31 || h > 23 || mi > 59 || se > 59 || h < 0 || mi < 0 || se < 0 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(mo), da, h, mi, se, 0, time.UTC), true
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
