package notify

import "go.uber.org/fx"

var Module = fx.Module("notify.service",
	fx.Provide(NewNotifier),
)

var TaskModule = fx.Module("notify.task",
	fx.Provide(NewTaskHandler),
	fx.Invoke(registerTaskHandlers),
)
