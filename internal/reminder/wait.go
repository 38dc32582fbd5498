package reminder

import (
	"strconv"
	"strings"
	"time"
)

// DescribeWait renders d as days, hours and minutes joined by ", ".
// Anything under a minute reads "menos de un minuto".
func DescribeWait(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	var parts []string
	add := func(n int, one, many string) {
		switch {
		case n == 1:
			parts = append(parts, "1 "+one)
		case n > 1:
			parts = append(parts, strconv.Itoa(n)+" "+many)
		}
	}
	add(days, "día", "días")
	add(hours, "hora", "horas")
	add(minutes, "minuto", "minutos")
	if len(parts) == 0 {
		return "menos de un minuto"
	}
	return strings.Join(parts, ", ")
}
