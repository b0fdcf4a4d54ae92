// Command mkfs builds and inspects easyfs disk images, the same shape as
// the teacher's own cmd: a single cli.App with a small Commands slice.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-easyfs/easyfs/block"
	"github.com/go-easyfs/easyfs/cache"
	"github.com/go-easyfs/easyfs/diskgeom"
	"github.com/go-easyfs/easyfs/fsys"
	"github.com/go-easyfs/easyfs/vfs"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Usage: "Build and inspect easyfs disk images",
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create or wipe an image file",
				Action:    formatImage,
				ArgsUsage: "IMAGE_PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "preset",
						Usage: fmt.Sprintf("named size preset (%s)", strings.Join(diskgeom.Slugs(), ", ")),
						Value: "small",
					},
				},
			},
			{
				Name:      "stat",
				Usage:     "Print the root directory's inode metadata and entry names",
				Action:    statImage,
				ArgsUsage: "IMAGE_PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "preset",
						Usage: "preset the image was formatted with, to recover its total block count",
						Value: "small",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func formatImage(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("missing IMAGE_PATH", 1)
	}

	preset, err := diskgeom.Get(c.String("preset"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := file.Truncate(int64(preset.TotalBlocks) * block.BlockSize); err != nil {
		return err
	}

	device := block.NewFileDevice(file, uint64(preset.TotalBlocks))
	c2 := cache.New()
	fsys.Create(device, c2, preset.TotalBlocks, preset.InodeBitmapBlock)

	return device.Sync()
}

func statImage(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("missing IMAGE_PATH", 1)
	}

	preset, err := diskgeom.Get(c.String("preset"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	device := block.NewFileDevice(file, uint64(preset.TotalBlocks))
	fs, err := fsys.Open(device, cache.New())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	root := vfs.NewFS(fs).Root(device)
	stat := root.Stat()
	fmt.Printf("ino=%d mode=%#o nlink=%d\n", stat.Ino, stat.Mode, stat.Nlink)
	for _, name := range root.Ls() {
		fmt.Println(name)
	}
	return nil
}
