// Command blockfs is the interactive shell over a blockfs volume (spec.md
// §6's "external collaborator" CLI), grounded on direktiv-vorteil's
// cobra-based outer argument parsing for the program invocation and
// KarpelesLab-squashfs's bare switch-dispatch loop for the line-oriented
// inner shell.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blockfs/blockfs/blockdev"
)

var log = logrus.StandardLogger()

var formatOnStart bool

var rootCmd = &cobra.Command{
	Use:   "blockfs <disk_image_path> <nblocks>",
	Short: "Interactive shell over a blockfs volume",
	Args:  cobra.ExactArgs(2),
	RunE:  runShell,
}

func init() {
	rootCmd.Flags().BoolVar(&formatOnStart, "format", false, "format the volume before entering the shell")
	logrus.SetLevel(logrus.InfoLevel)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runShell(cmd *cobra.Command, args []string) error {
	path := args[0]
	nblocks, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid block count %q: %w", args[1], err)
	}

	dev, err := blockdev.Open(path, uint32(nblocks))
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer dev.Close()

	sh := newShell(dev, path, cmd.OutOrStdout())
	if formatOnStart {
		if err := sh.cmdFormat(nil); err != nil {
			return err
		}
	}

	sh.runLoop(cmd.InOrStdin())
	return nil
}
