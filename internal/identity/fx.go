package identity

import (
	"github.com/propbase/propbase/internal/identity/repository"
	"github.com/propbase/propbase/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
