// The main package for the harvester executable.
package main

import (
	"github.com/urbanpulse/event-harvester/cmd"
)

func main() {
	cmd.Execute()
}
