package main

import (
	"context"

	"itsdu-backend/cmd/itsdu-cli/commands"
	"itsdu-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "itsdu-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
