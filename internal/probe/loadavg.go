package probe

import (
	"os"
	"strconv"
	"strings"

	"github.com/nanoagent/nanoagent/internal/model"
)

// readLoadAverage reads /proc/loadavg (Unix only). On
// non-Linux platforms or read failure it returns nil, which the sampler
// renders as an absent load_avg field.
func readLoadAverage() *model.LoadAverage {
	b, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return nil
	}
	fields := strings.Fields(string(b))
	if len(fields) < 3 {
		return nil
	}
	l1, err1 := strconv.ParseFloat(fields[0], 64)
	l5, err5 := strconv.ParseFloat(fields[1], 64)
	l15, err15 := strconv.ParseFloat(fields[2], 64)
	if err1 != nil || err5 != nil || err15 != nil {
		return nil
	}
	return &model.LoadAverage{Load1: l1, Load5: l5, Load15: l15}
}
