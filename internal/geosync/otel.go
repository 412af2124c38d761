package geosync

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/m-tsuru/tenchi-geolocation/internal/geosync"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
