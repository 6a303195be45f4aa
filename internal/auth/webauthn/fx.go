package webauthn

import "go.uber.org/fx"

var Module = fx.Module("auth.webauthn",
	fx.Provide(NewManager),
)
