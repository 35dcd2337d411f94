// Command flatpak-module-tools rebuilds the RPMs a flatpak container
// needs, locally or in Koji.
package main

import "github.com/owtaylor/flatpak-module-tools/cmd"

func main() {
	cmd.Execute()
}
