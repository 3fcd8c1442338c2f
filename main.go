// The main package for the aqi-etl executable.
package main

import (
	"github.com/JakeFAU/realtime-aqi-etl/cmd"
)

func main() {
	cmd.Execute()
}
