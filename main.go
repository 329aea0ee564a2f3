// The main package for the linkvault executable.
package main

import (
	"github.com/JakeFAU/linkvault/cmd"
)

func main() {
	cmd.Execute()
}
