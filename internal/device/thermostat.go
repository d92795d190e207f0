package device

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-nest/internal/command"
)

// EcoMinSoftwareVersion is the first firmware that accepts eco mode.
const EcoMinSoftwareVersion = "5.6.0"

// EcoOverride lets a target temperature command switch a thermostat out
// of eco mode first.
type EcoOverride struct {
	Allow bool
	// Mode is the mode switched to: heat, cool or heat-cool.
	Mode string
}

func (o EcoOverride) applies() bool {
	if !o.Allow {
		return false
	}
	switch o.Mode {
	case HvacHeat, HvacCool, HvacHeatCool:
		return true
	}
	return false
}

// SetTargetTemperature rounds celsius to half a degree and writes it.
//
// When the thermostat is in eco mode and eco allows an override, the HVAC
// mode is switched first and the rules are evaluated against the new
// mode. A failed switch is recorded as an eco override failure and the
// temperature is not written.
func (h *Handle) SetTargetTemperature(ctx context.Context, celsius float64, eco EcoOverride) error {
	if h.kind != KindThermostat {
		return ErrUnsupportedCommand
	}
	if err := h.usable(); err != nil {
		return err
	}

	temp := command.RoundHalf(celsius)
	state := h.Attributes()

	if mode, _ := state[AttrHvacMode].(string); mode == HvacEco && eco.applies() {
		if err := h.SetHvacMode(ctx, eco.Mode); err != nil {
			h.registry.journal.Record(ctx,
				fmt.Sprintf("%s: eco override failed: %v", h.Name(), err),
				map[string]any{"device_id": h.id, "kind": string(h.kind), "attr": AttrHvacMode})
			return err
		}
		state[AttrHvacMode] = eco.Mode
	}

	if err := targetTemperatureRules(h.Name(), state, temp); err != nil {
		h.record(ctx, err, AttrTargetTemperatureC, temp)
		return err
	}
	return h.write(ctx, AttrTargetTemperatureC, temp)
}

// SetHvacMode writes mode after checking the hardware supports it.
func (h *Handle) SetHvacMode(ctx context.Context, mode string) error {
	if h.kind != KindThermostat {
		return ErrUnsupportedCommand
	}
	return h.SendCommand(ctx, AttrHvacMode, mode)
}

// checkPreconditions dispatches to the rules for kind. Attributes without
// rules pass.
func checkPreconditions(kind Kind, name string, state map[string]any, attr string, value any) error {
	switch kind {
	case KindThermostat:
		switch {
		case attr == AttrHvacMode:
			mode, ok := value.(string)
			if !ok {
				return command.Precondition(fmt.Sprintf("hvac_mode must be a string, got %T", value))
			}
			return hvacModeRules(name, state, mode)
		case attr == AttrTargetTemperatureC:
			temp, ok := toFloat(value)
			if !ok {
				return command.Precondition(fmt.Sprintf("%s must be a number, got %T", attr, value))
			}
			return targetTemperatureRules(name, state, command.RoundHalf(temp))
		case command.IsTemperatureAttr(attr):
			if emergencyHeat(state) {
				return command.Precondition(fmt.Sprintf("%s is using emergency heat", name))
			}
		}
	case KindCamera:
		if attr == AttrIsStreaming {
			if _, ok := value.(bool); !ok {
				return command.Precondition(fmt.Sprintf("is_streaming must be a boolean, got %T", value))
			}
		}
	}
	return nil
}

func targetTemperatureRules(name string, state map[string]any, temp float64) error {
	if emergencyHeat(state) {
		return command.Precondition(fmt.Sprintf(
			"cannot set %s to %.1f°C while emergency heat is active", name, temp))
	}
	switch mode, _ := state[AttrHvacMode].(string); mode {
	case HvacHeatCool:
		return command.Precondition(fmt.Sprintf(
			"cannot set %s to %.1f°C while it is in heat-cool mode", name, temp))
	case HvacEco:
		return command.Precondition(fmt.Sprintf(
			"cannot set %s to %.1f°C while it is in eco mode", name, temp))
	}
	if locked, _ := state[AttrIsLocked].(bool); locked {
		lo, okLo := toFloat(state[AttrLockedTempMinC])
		hi, okHi := toFloat(state[AttrLockedTempMaxC])
		if okLo && okHi && (temp < lo || temp > hi) {
			return command.Precondition(fmt.Sprintf(
				"cannot set %s to %.1f°C: locked to %.1f-%.1f°C", name, temp, lo, hi))
		}
	}
	return nil
}

func hvacModeRules(name string, state map[string]any, mode string) error {
	if emergencyHeat(state) {
		return command.Precondition(fmt.Sprintf("cannot change mode of %s while emergency heat is active", name))
	}
	canCool, _ := state[AttrCanCool].(bool)
	canHeat, _ := state[AttrCanHeat].(bool)

	switch mode {
	case HvacHeatCool:
		if !canCool || !canHeat {
			return command.Precondition(fmt.Sprintf("%s does not support heat-cool mode", name))
		}
	case HvacCool:
		if !canCool {
			return command.Precondition(fmt.Sprintf("%s does not support cool mode", name))
		}
	case HvacHeat:
		if !canHeat {
			return command.Precondition(fmt.Sprintf("%s does not support heat mode", name))
		}
	case HvacEco:
		version, _ := state[AttrSoftwareVersion].(string)
		if !VersionAtLeast(version, EcoMinSoftwareVersion) || !(canCool || canHeat) {
			return command.Precondition(fmt.Sprintf("%s does not support eco mode", name))
		}
	case HvacOff:
	default:
		return command.Precondition(fmt.Sprintf("unknown hvac mode %q", mode))
	}
	return nil
}

func emergencyHeat(state map[string]any) bool {
	on, _ := state[AttrEmergencyHeat].(bool)
	return on
}

// toFloat accepts the numeric shapes that reach a handle: JSON numbers
// decode as float64, callers may pass ints.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
