package main

import (
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/bayleafwalker/bindery-extensions/cmd/extctl/commands"
)

func main() {
	commands.Execute(ctrl.SetupSignalHandler())
}
