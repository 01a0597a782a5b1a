package probe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleParamsDefaults(t *testing.T) {
	initialDelay, interval := ScheduleParams(map[string]interface{}{})
	assert.Equal(t, DefaultInitialDelay, initialDelay)
	assert.Equal(t, DefaultInterval, interval)
}

func TestScheduleParamsFromRenderedSpec(t *testing.T) {
	// A YAML decode hands numbers over as float64.
	spec := map[string]interface{}{
		"initial_delay_seconds": float64(5),
		"interval_seconds":      float64(60),
	}
	initialDelay, interval := ScheduleParams(spec)
	assert.Equal(t, 5*time.Second, initialDelay)
	assert.Equal(t, time.Minute, interval)
}

func TestIntsFieldTolerantOfNumberShapes(t *testing.T) {
	spec := map[string]interface{}{
		"healthy_status_codes": []interface{}{float64(200), 204},
	}
	assert.Equal(t, []int{200, 204}, IntsField(spec, "healthy_status_codes"))
	assert.Nil(t, IntsField(spec, "absent"))
}

func TestStringMapFieldSkipsNonStrings(t *testing.T) {
	spec := map[string]interface{}{
		"headers": map[string]interface{}{
			"Authorization": "Bearer t",
			"X-Broken":      7,
		},
	}
	headers := StringMapField(spec, "headers")
	assert.Equal(t, map[string]string{"Authorization": "Bearer t"}, headers)
}
