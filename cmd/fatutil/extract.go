package main

import (
	"os"

	"github.com/urfave/cli/v2"
)

var extractCommand = &cli.Command{
	Name:      "extract",
	Usage:     "Copy a file out of the image to a local path",
	ArgsUsage: "IMAGE SOURCE-PATH DEST-PATH",
	Action:    runExtract,
}

func runExtract(c *cli.Context) error {
	if c.NArg() < 3 {
		return cli.Exit("extract requires IMAGE, SOURCE-PATH and DEST-PATH arguments", 1)
	}
	imagePath := c.Args().Get(0)
	srcPath := c.Args().Get(1)
	destPath := c.Args().Get(2)

	fs, closeFS, err := openVolume(imagePath, false)
	if err != nil {
		return err
	}
	defer closeFS()

	root, err := fs.Root()
	if err != nil {
		return err
	}
	dir, name, err := resolveFile(root, srcPath)
	if err != nil {
		return err
	}

	f, err := dir.OpenFile(name)
	if err != nil {
		return err
	}

	length, err := f.GetLength()
	if err != nil {
		return err
	}
	buf := make([]byte, length)
	if err := f.Read(0, buf); err != nil {
		return err
	}

	return os.WriteFile(destPath, buf, 0o644)
}
