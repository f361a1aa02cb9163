package main

import (
	"os"

	_ "go.uber.org/automaxprocs"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/agvfleet/cmd/agvfleetd/app"
)

func main() {
	ctx := genericapiserver.SetupSignalContext()
	if err := app.NewAgvFleetCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
