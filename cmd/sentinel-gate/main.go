// Command sentinel-gate runs the Sentinel zero-trust policy gateway.
package main

import "github.com/Sentinel-Gate/Sentinelgate/cmd/sentinel-gate/cmd"

func main() {
	cmd.Execute()
}
