package base

import (
	"awardfinder-backend/lib/restyutil"
	"awardfinder-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

// HTTPOptions configure the shared resty client every adapter uses.
type HTTPOptions struct {
	BaseURL    string
	TracerName string
	// route through the cloudflare bypass transport, needed for the
	// foundation sites fronted by cloudflare
	CloudflareBypass bool
	// when set, every HTTP exchange is dumped into this directory
	DumpDir string
}

func NewHTTPClient(opts HTTPOptions) *resty.Client {
	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	telemetry.InstrumentResty(client, opts.TracerName)
	if opts.DumpDir != "" {
		restyutil.InstrumentClient(client, restyutil.NewFilesystemOutput(opts.DumpDir))
	}
	return client
}
