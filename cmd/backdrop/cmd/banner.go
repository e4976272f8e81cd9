package cmd

import (
	"fmt"
)

const banner = `
  ____             _       _
 | __ )  __ _  ___| | ____| |_ __ ___  _ __
 |  _ \ / _` + "`" + ` |/ __| |/ / _` + "`" + ` | '__/ _ \| '_ \
 | |_) | (_| | (__|   < (_| | | | (_) | |_) |
 |____/ \__,_|\___|_|\_\__,_|_|  \___/| .__/
                                      |_|
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Photo Background Editor - Version %s\x1b[0m\n\n", Version)
}
