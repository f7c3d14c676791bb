package nih

import (
	"awardfinder-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("awardfinder.lib.sources.nih")
