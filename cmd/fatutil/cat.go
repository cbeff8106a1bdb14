package main

import (
	"os"

	"github.com/urfave/cli/v2"
)

var catCommand = &cli.Command{
	Name:      "cat",
	Usage:     "Print a file's contents to stdout",
	ArgsUsage: "IMAGE PATH",
	Action:    runCat,
}

func runCat(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("cat requires IMAGE and PATH arguments", 1)
	}
	imagePath := c.Args().Get(0)
	filePath := c.Args().Get(1)

	fs, closeFS, err := openVolume(imagePath, false)
	if err != nil {
		return err
	}
	defer closeFS()

	root, err := fs.Root()
	if err != nil {
		return err
	}
	dir, name, err := resolveFile(root, filePath)
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

	_, err = os.Stdout.Write(buf)
	return err
}
