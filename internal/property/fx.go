package property

import (
	"github.com/propbase/propbase/internal/property/repository"
	"github.com/propbase/propbase/internal/property/service"
	"go.uber.org/fx"
)

var Module = fx.Module("property.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
