// Package api provides the HTTP server the frontend talks to.
//
// It's thin on purpose: requests are authenticated, decoded, and handed to the subscription
// service, and whatever comes back is rendered as JSON.
package api

import (
	"go.uber.org/fx"
)

var Module = fx.Module("api",
	fx.Provide(
		NewServer,
	),
)
