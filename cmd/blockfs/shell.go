package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/blockfs/blockfs/blockdev"
	"github.com/blockfs/blockfs/fsengine"
	"github.com/blockfs/blockfs/fuseadapter"
	"github.com/blockfs/blockfs/ioiter"
)

// shell holds the state one interactive session threads through every
// dispatched command: the still-open device, the currently mounted
// filesystem (nil until format/mount succeeds), and where output goes.
type shell struct {
	dev  *blockdev.Device
	path string
	fs   *fsengine.FS
	out  io.Writer
}

func newShell(dev *blockdev.Device, path string, out io.Writer) *shell {
	return &shell{dev: dev, path: path, out: out}
}

func (sh *shell) runLoop(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		if sh.dispatch(cmd, args) {
			return
		}
	}
}

// dispatch runs one command and reports whether the shell should exit.
func (sh *shell) dispatch(cmd string, args []string) (done bool) {
	entry := log.WithField("op", cmd)

	switch cmd {
	case "format":
		if err := sh.cmdFormat(args); err != nil {
			entry.WithError(err).Error("format failed")
			fmt.Fprintf(sh.out, "format failed: %v\n", err)
			return false
		}
		fmt.Fprintln(sh.out, "format ok")
	case "mount":
		if err := sh.cmdMount(); err != nil {
			entry.WithError(err).Error("mount failed")
			fmt.Fprintf(sh.out, "mount failed: %v\n", err)
			return false
		}
		fmt.Fprintln(sh.out, "mount ok")
	case "debug":
		sh.cmdDebug()
	case "create":
		sh.cmdCreate()
	case "create_dir":
		sh.cmdCreateDir()
	case "remove":
		sh.cmdRemove(args)
	case "stat":
		sh.cmdStat(args)
	case "cat":
		sh.cmdCat(args)
	case "copyin":
		sh.cmdCopyin(args)
	case "copyout":
		sh.cmdCopyout(args)
	case "truncate":
		sh.cmdTruncate(args)
	case "fuse_mount":
		sh.cmdFuseMount(args)
	case "help":
		sh.cmdHelp()
	case "exit", "quit":
		return true
	default:
		fmt.Fprintf(sh.out, "unrecognized command %q, try help\n", cmd)
	}
	return false
}

func (sh *shell) cmdFormat(_ []string) error {
	id := uuid.New()
	fs, err := fsengine.Format(sh.dev, id)
	if err != nil {
		return err
	}
	sh.fs = fs
	return nil
}

func (sh *shell) cmdMount() error {
	fs, err := fsengine.Mount(sh.dev)
	if err != nil {
		return err
	}
	sh.fs = fs
	return nil
}

func (sh *shell) requireMounted() bool {
	if sh.fs == nil {
		fmt.Fprintln(sh.out, "no volume mounted, run format or mount first")
		return false
	}
	return true
}

func (sh *shell) cmdDebug() {
	if !sh.requireMounted() {
		return
	}
	sb, inodes := sh.fs.Debug()
	fmt.Fprintf(sh.out, "magic=%#x blocks=%d current_block_index=%d free_blocks=%d inodes=%d free_inodes=%d uuid=%x\n",
		sb.Magic, sb.Blocks, sb.CurrentBlockIndex, sb.FreeBlocks, sb.Inodes, sb.FreeInodes, sb.VolumeUUID)
	for _, in := range inodes {
		fmt.Fprintf(sh.out, "  inode %d kind=%d size=%d blocks=%d\n", in.Inumber, in.Kind, in.Size, in.Blocks)
	}
}

func (sh *shell) cmdCreate() {
	if !sh.requireMounted() {
		return
	}
	inum, err := sh.fs.Create()
	if err != nil {
		fmt.Fprintf(sh.out, "create failed: %v\n", err)
		return
	}
	fmt.Fprintln(sh.out, inum)
}

func (sh *shell) cmdCreateDir() {
	if !sh.requireMounted() {
		return
	}
	inum, err := sh.fs.CreateDir()
	if err != nil {
		fmt.Fprintf(sh.out, "create_dir failed: %v\n", err)
		return
	}
	fmt.Fprintln(sh.out, inum)
}

func parseInumber(args []string) (uint32, error) {
	if len(args) < 1 {
		return 0, errors.New("missing inumber argument")
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid inumber %q: %w", args[0], err)
	}
	return uint32(n), nil
}

func (sh *shell) cmdRemove(args []string) {
	if !sh.requireMounted() {
		return
	}
	inum, err := parseInumber(args)
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}
	if err := sh.fs.Remove(inum); err != nil {
		fmt.Fprintf(sh.out, "remove failed: %v\n", err)
	}
}

func (sh *shell) cmdStat(args []string) {
	if !sh.requireMounted() {
		return
	}
	inum, err := parseInumber(args)
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}
	size, err := sh.fs.Stat(inum)
	if err != nil {
		fmt.Fprintf(sh.out, "stat failed: %v\n", err)
		return
	}
	fmt.Fprintln(sh.out, size)
}

func (sh *shell) cmdCat(args []string) {
	if !sh.requireMounted() {
		return
	}
	inum, err := parseInumber(args)
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}
	size, err := sh.fs.Stat(inum)
	if err != nil {
		fmt.Fprintf(sh.out, "cat failed: %v\n", err)
		return
	}
	buf := make([]byte, size)
	if _, err := sh.fs.Read(inum, 0, buf); err != nil {
		fmt.Fprintf(sh.out, "cat failed: %v\n", err)
		return
	}
	sh.out.Write(buf)
}

func (sh *shell) cmdCopyin(args []string) {
	if !sh.requireMounted() {
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(sh.out, "usage: copyin <inumber> <host_path>")
		return
	}
	inum, err := parseInumber(args[:1])
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}
	f, err := os.Open(args[1])
	if err != nil {
		fmt.Fprintf(sh.out, "copyin failed: %v\n", err)
		return
	}
	defer f.Close()

	if err := sh.fs.Truncate(inum, 0); err != nil {
		fmt.Fprintf(sh.out, "copyin failed: %v\n", err)
		return
	}
	buf := make([]byte, ioiter.BlockSize)
	offset := uint32(0)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := sh.fs.Write(inum, offset, buf[:n]); werr != nil {
				fmt.Fprintf(sh.out, "copyin failed: %v\n", werr)
				return
			}
			offset += uint32(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			fmt.Fprintf(sh.out, "copyin failed: %v\n", rerr)
			return
		}
	}
}

func (sh *shell) cmdCopyout(args []string) {
	if !sh.requireMounted() {
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(sh.out, "usage: copyout <inumber> <host_path>")
		return
	}
	inum, err := parseInumber(args[:1])
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}
	size, err := sh.fs.Stat(inum)
	if err != nil {
		fmt.Fprintf(sh.out, "copyout failed: %v\n", err)
		return
	}
	out, err := os.Create(args[1])
	if err != nil {
		fmt.Fprintf(sh.out, "copyout failed: %v\n", err)
		return
	}
	defer out.Close()

	buf := make([]byte, ioiter.BlockSize)
	offset := uint32(0)
	for offset < size {
		want := size - offset
		if want > uint32(len(buf)) {
			want = uint32(len(buf))
		}
		n, err := sh.fs.Read(inum, offset, buf[:want])
		if err != nil && n == 0 {
			fmt.Fprintf(sh.out, "copyout failed: %v\n", err)
			return
		}
		if n == 0 {
			break
		}
		if _, werr := out.Write(buf[:n]); werr != nil {
			fmt.Fprintf(sh.out, "copyout failed: %v\n", werr)
			return
		}
		offset += uint32(n)
	}
}

func (sh *shell) cmdTruncate(args []string) {
	if !sh.requireMounted() {
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(sh.out, "usage: truncate <inumber> <byte_offset>")
		return
	}
	inum, err := parseInumber(args[:1])
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}
	offset, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fmt.Fprintf(sh.out, "invalid byte_offset %q: %v\n", args[1], err)
		return
	}
	if err := sh.fs.Truncate(inum, uint32(offset)); err != nil {
		fmt.Fprintf(sh.out, "truncate failed: %v\n", err)
	}
}

func (sh *shell) cmdFuseMount(args []string) {
	if !sh.requireMounted() {
		return
	}
	mountpoint := sh.path + ".mnt"
	if len(args) > 0 {
		mountpoint = args[0]
	}
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		fmt.Fprintf(sh.out, "fuse_mount failed: %v\n", err)
		return
	}
	log.WithField("op", "fuse_mount").WithField("mountpoint", mountpoint).Info("mounting")
	if err := fuseadapter.Mount(sh.fs, mountpoint); err != nil {
		fmt.Fprintf(sh.out, "fuse_mount failed: %v\n", err)
	}
}

func (sh *shell) cmdHelp() {
	fmt.Fprint(sh.out, `commands:
  format
  mount
  debug
  create
  create_dir
  remove <inumber>
  stat <inumber>
  cat <inumber>
  copyin <inumber> <host_path>
  copyout <inumber> <host_path>
  truncate <inumber> <byte_offset>
  fuse_mount [mountpoint]
  help
  exit | quit
`)
}
