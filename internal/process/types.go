package process

import (
	"fmt"
	"sort"
)

// Type is a process category. The set of types is closed; see Types.
type Type string

// Process types.
const (
	CameraCool    Type = "CameraCool"
	CameraWarm    Type = "CameraWarm"
	CameraCapture Type = "CameraCapture"

	DomeOpenShutter  Type = "DomeOpenShutter"
	DomeCloseShutter Type = "DomeCloseShutter"
	DomePark         Type = "DomePark"
	DomeHome         Type = "DomeHome"
	DomeSlew         Type = "DomeSlew"

	MountSlew    Type = "MountSlew"
	MountPark    Type = "MountPark"
	MountHome    Type = "MountHome"
	MeridianFlip Type = "MeridianFlip"

	FocuserMove  Type = "FocuserMove"
	AutoFocus    Type = "AutoFocus"
	FilterChange Type = "FilterChange"
	RotatorMove  Type = "RotatorMove"

	GuiderStart     Type = "GuiderStart"
	GuiderCalibrate Type = "GuiderCalibrate"

	FlatPanelToggle Type = "FlatPanelToggle"
	PlateSolve      Type = "PlateSolve"
)

// typeSpec describes a catalog entry.
type typeSpec struct {
	device        string
	action        string
	allowMultiple bool
}

var catalog = map[Type]typeSpec{
	CameraCool:    {device: "camera", action: "cool"},
	CameraWarm:    {device: "camera", action: "warm"},
	CameraCapture: {device: "camera", action: "capture"},

	DomeOpenShutter:  {device: "dome", action: "open-shutter"},
	DomeCloseShutter: {device: "dome", action: "close-shutter"},
	DomePark:         {device: "dome", action: "park"},
	DomeHome:         {device: "dome", action: "home"},
	DomeSlew:         {device: "dome", action: "slew"},

	MountSlew:    {device: "mount", action: "slew"},
	MountPark:    {device: "mount", action: "park"},
	MountHome:    {device: "mount", action: "home"},
	MeridianFlip: {device: "mount", action: "meridian-flip"},

	FocuserMove:  {device: "focuser", action: "move"},
	AutoFocus:    {device: "focuser", action: "autofocus"},
	FilterChange: {device: "filterwheel", action: "change"},
	RotatorMove:  {device: "rotator", action: "move"},

	GuiderStart:     {device: "guider", action: "start"},
	GuiderCalibrate: {device: "guider", action: "calibrate"},

	FlatPanelToggle: {device: "flatpanel", action: "toggle"},
	PlateSolve:      {device: "platesolver", action: "solve", allowMultiple: true},
}

// conflictPairs declares each conflict once. A pair of the same type makes
// the type conflict with itself. The relation is closed symmetrically in init.
var conflictPairs = [][2]Type{
	// Camera.
	{CameraCool, CameraWarm},
	{CameraCool, CameraCool},
	{CameraWarm, CameraWarm},
	{CameraCapture, CameraCapture},

	// Dome shutter and azimuth.
	{DomeOpenShutter, DomeCloseShutter},
	{DomeOpenShutter, DomeOpenShutter},
	{DomeCloseShutter, DomeCloseShutter},
	{DomePark, DomeHome},
	{DomePark, DomeSlew},
	{DomeHome, DomeSlew},
	{DomePark, DomePark},
	{DomeHome, DomeHome},
	{DomeSlew, DomeSlew},

	// Mount motion is exclusive.
	{MountSlew, MountPark},
	{MountSlew, MountHome},
	{MountSlew, MeridianFlip},
	{MountPark, MountHome},
	{MountPark, MeridianFlip},
	{MountHome, MeridianFlip},
	{MountSlew, MountSlew},
	{MountPark, MountPark},
	{MountHome, MountHome},
	{MeridianFlip, MeridianFlip},

	// Focusing also moves the filter wheel and exposes.
	{FocuserMove, AutoFocus},
	{FocuserMove, FocuserMove},
	{AutoFocus, AutoFocus},
	{AutoFocus, FilterChange},
	{AutoFocus, CameraCapture},
	{FilterChange, FilterChange},
	{FilterChange, CameraCapture},

	{RotatorMove, RotatorMove},

	// Guiding.
	{GuiderStart, GuiderCalibrate},
	{GuiderStart, GuiderStart},
	{GuiderCalibrate, GuiderCalibrate},
	{GuiderCalibrate, MountSlew},
	{GuiderCalibrate, MeridianFlip},

	{FlatPanelToggle, FlatPanelToggle},

	// Plate solving.
	{PlateSolve, PlateSolve},
	{PlateSolve, MountSlew},
	{PlateSolve, MeridianFlip},
	{PlateSolve, CameraCapture},
}

var conflicts map[Type]map[Type]bool

func init() {
	conflicts = make(map[Type]map[Type]bool, len(catalog))
	add := func(a, b Type) {
		if conflicts[a] == nil {
			conflicts[a] = make(map[Type]bool)
		}
		conflicts[a][b] = true
	}
	for _, pair := range conflictPairs {
		if _, ok := catalog[pair[0]]; !ok {
			panic(fmt.Sprintf("process: conflict declared for unknown type %q", pair[0]))
		}
		if _, ok := catalog[pair[1]]; !ok {
			panic(fmt.Sprintf("process: conflict declared for unknown type %q", pair[1]))
		}
		add(pair[0], pair[1])
		add(pair[1], pair[0])
	}
}

// Types returns the catalog sorted by name.
func Types() []Type {
	out := make([]Type, 0, len(catalog))
	for t := range catalog {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseType looks up a type by name.
func ParseType(name string) (Type, error) {
	t := Type(name)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// Name returns the type's name.
func (t Type) Name() string { return string(t) }

// Valid reports whether t is in the catalog.
func (t Type) Valid() bool {
	_, ok := catalog[t]
	return ok
}

// Device is the device the type's work drives, e.g. "mount".
func (t Type) Device() string { return catalog[t].device }

// Action is the device command the type issues, e.g. "slew".
func (t Type) Action() string { return catalog[t].action }

// AllowMultiple reports whether several processes of this exact type may run
// at once. It only waives the type's conflict with itself.
func (t Type) AllowMultiple() bool { return catalog[t].allowMultiple }

// ConflictsWith reports whether t and o are declared to conflict.
// The relation is symmetric.
func (t Type) ConflictsWith(o Type) bool {
	return conflicts[t][o]
}

// Conflicts returns every type t conflicts with, sorted by name.
func (t Type) Conflicts() []Type {
	out := make([]Type, 0, len(conflicts[t]))
	for o := range conflicts[t] {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// blocks reports whether a running process of type running prevents
// starting one of type t.
func blocks(t, running Type) bool {
	if t == running && t.AllowMultiple() {
		return false
	}
	return t.ConflictsWith(running)
}
