package requestlog

import (
	"github.com/propbase/propbase/internal/requestlog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("requestlog.service",
	fx.Provide(service.New),
)
