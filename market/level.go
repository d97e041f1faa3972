package market

import "fmt"

// InterventionLevel is the graduated response tier. Values are totally ordered
// by severity; comparisons between levels are meaningful.
type InterventionLevel int

const (
	Monitoring       InterventionLevel = 1
	SoftThrottle     InterventionLevel = 2 // Preemptive
	Throttle         InterventionLevel = 3
	CoolingOff       InterventionLevel = 4
	GlobalSpeedLimit InterventionLevel = 5 // Instead of a full halt
)

var levelNames = map[InterventionLevel]string{
	Monitoring:       "LEVEL_1_MONITORING",
	SoftThrottle:     "LEVEL_1B_SOFT_THROTTLING",
	Throttle:         "LEVEL_2_THROTTLING",
	CoolingOff:       "LEVEL_3_COOLING_OFF",
	GlobalSpeedLimit: "LEVEL_4_GLOBAL_SPEED_LIMIT",
}

func (l InterventionLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL_UNKNOWN(%d)", int(l))
}

// Valid reports whether l is one of the five defined levels.
func (l InterventionLevel) Valid() bool {
	return l >= Monitoring && l <= GlobalSpeedLimit
}

// ParseLevel maps a canonical level name back to its value.
func ParseLevel(name string) (InterventionLevel, error) {
	for level, n := range levelNames {
		if n == name {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown intervention level %q", name)
}
