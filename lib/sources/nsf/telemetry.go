package nsf

import (
	"awardfinder-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("awardfinder.lib.sources.nsf")
