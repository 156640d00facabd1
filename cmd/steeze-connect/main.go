package main

import (
	"go.uber.org/fx"

	"github.com/joeydtaylor/steeze-connect/pkg/serverfx"
)

func main() {
	fx.New(
		serverfx.Module(serverfx.WithService("steeze-connect")),
	).Run()
}
