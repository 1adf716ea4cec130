// Command nyarr converts tar archives to NAR byte streams and SRI digests,
// and can mount the decoded tree read-only for inspection before it is
// serialized. Argument parsing is deliberately plain os.Args dispatch,
// matching the teacher's cmd/main.go and cmd/import_tar.go rather than
// pulling in a flag-parsing dependency the corpus never uses for a CLI this
// small.
package main

import (
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-errors/errors"

	"github.com/lf-/nyarr"
	"github.com/lf-/nyarr/internal/narfs"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "tar2nar":
		err = runTar2Nar(os.Args[2:])
	case "hash":
		err = runHash(os.Args[2:])
	case "mount":
		err = runMount(os.Args[2:])
	case "dump":
		err = runDump(os.Args[2:])
	default:
		usage()
	}

	if err != nil {
		fail(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: nyarr tar2nar <tarfile> <narfile> [--strip-root]")
	fmt.Fprintln(os.Stderr, "       nyarr hash <tarfile> [--strip-root]")
	fmt.Fprintln(os.Stderr, "       nyarr mount <tarfile> <mountpoint> [--strip-root]")
	fmt.Fprintln(os.Stderr, "       nyarr dump <tarfile> [--strip-root]")
	os.Exit(2)
}

func fail(err error) {
	if gerr, ok := err.(*errors.Error); ok {
		log.Fatal(gerr.ErrorStack())
	}
	log.Fatal(err)
}

// parseStripRoot pulls a "--strip-root" flag (at any position) out of args, returning
// the remaining positional arguments and whether it was present.
func parseStripRoot(args []string) ([]string, nyarr.StripRoot) {
	out := args[:0:0]
	strip := nyarr.DontStripRoot
	for _, a := range args {
		if a == "--strip-root" {
			strip = nyarr.StripRootComponent
			continue
		}
		out = append(out, a)
	}
	return out, strip
}

func openTarFile(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "opening tar file", 0)
	}

	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".tgz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.WrapPrefix(err, "creating gzip reader", 0)
		}
		return struct {
			io.Reader
			io.Closer
		}{gz, f}, nil
	}
	return f, nil
}

func runTar2Nar(args []string) error {
	args, strip := parseStripRoot(args)
	if len(args) != 2 {
		usage()
	}

	in, err := openTarFile(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(args[1])
	if err != nil {
		return errors.WrapPrefix(err, "creating nar file", 0)
	}
	defer out.Close()

	if err := nyarr.TarToNar(in, out, strip); err != nil {
		return errors.WrapPrefix(err, "converting tar to nar", 0)
	}
	fmt.Printf("Wrote %s\n", args[1])
	return nil
}

func runHash(args []string) error {
	args, strip := parseStripRoot(args)
	if len(args) != 1 {
		usage()
	}

	in, err := openTarFile(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	hasher := nyarr.NewHasher()
	if err := nyarr.TarToNar(in, hasher, strip); err != nil {
		return errors.WrapPrefix(err, "hashing tar archive", 0)
	}
	fmt.Println(hasher.Digest())
	return nil
}

// runDump pretty-prints the decoded VFS tree for debugging, without
// committing to a NAR byte stream or a FUSE mount.
func runDump(args []string) error {
	args, strip := parseStripRoot(args)
	if len(args) != 1 {
		usage()
	}

	in, err := openTarFile(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	root, err := nyarr.TarToFsObject(in, strip)
	if err != nil {
		return errors.WrapPrefix(err, "decoding tar archive", 0)
	}

	spew.Dump(root)
	return nil
}

func runMount(args []string) error {
	args, strip := parseStripRoot(args)
	if len(args) != 2 {
		usage()
	}

	in, err := openTarFile(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	root, err := nyarr.TarToFsObject(in, strip)
	if err != nil {
		return errors.WrapPrefix(err, "decoding tar archive", 0)
	}

	srv, err := narfs.Mount(args[1], root)
	if err != nil {
		return errors.WrapPrefix(err, "mounting narfs", 0)
	}

	log.Printf("Mounted %s at %s (read-only); interrupt to unmount", args[0], args[1])

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs

	if err := srv.Close(); err != nil {
		return errors.WrapPrefix(err, "unmounting narfs", 0)
	}
	return nil
}
