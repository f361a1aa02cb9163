package agv

type actionKey struct {
	capability Capability
	code       uint8
}

// Action code zero means "no action" for every capability.
const ActionIdle uint8 = 0

var actionNames = map[actionKey]string{
	{CapabilityTransfer, 1}:    "motor-forward",
	{CapabilityTransfer, 2}:    "motor-reverse",
	{CapabilityLifting, 1}:     "lifter-up",
	{CapabilityLifting, 2}:     "lifter-down",
	{CapabilitySubmersible, 1}: "lifter-up",
	{CapabilitySubmersible, 2}: "lifter-down",
	{CapabilityFork, 1}:        "load",
	{CapabilityFork, 2}:        "unload",
}

// ActionName returns the per-model name of an action code.
func ActionName(c Capability, code uint8) string {
	if code == ActionIdle {
		return "idle"
	}
	if n, ok := actionNames[actionKey{c, code}]; ok {
		return n
	}
	return "unknown"
}

// ActionByName resolves a per-model action name to its code.
func ActionByName(c Capability, name string) (uint8, bool) {
	for k, n := range actionNames {
		if k.capability == c && n == name {
			return k.code, true
		}
	}
	return 0, false
}
