package token

import (
	"github.com/propbase/propbase/internal/token/repository"
	"github.com/propbase/propbase/internal/token/service"
	"go.uber.org/fx"
)

var Module = fx.Module("token.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
