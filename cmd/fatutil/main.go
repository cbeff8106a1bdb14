// Command fatutil inspects and manipulates FAT12/16/32 image files: an
// external consumer of the fatfs package, not part of its core driver.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "fatutil",
		Usage: "Inspect and manipulate FAT12/16/32 disk images",
		Commands: []*cli.Command{
			lsCommand,
			catCommand,
			extractCommand,
			mkfsCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}
