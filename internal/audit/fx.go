package audit

import (
	"github.com/propbase/propbase/internal/audit/repository"
	"github.com/propbase/propbase/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
