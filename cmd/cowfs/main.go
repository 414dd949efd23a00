package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/intellect4all/cowtree/btree"
	"github.com/intellect4all/cowtree/objectfs"
)

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	file := os.Args[2]
	args := os.Args[3:]

	var err error
	switch cmd {
	case "init":
		err = cmdInit(file, args)
	case "ls":
		err = cmdLs(file, args)
	case "mkdir":
		err = cmdMkdir(file, args)
	case "put":
		err = cmdPut(file, args)
	case "cat":
		err = cmdCat(file, args)
	case "rm":
		err = cmdRm(file, args)
	case "stats":
		err = cmdStats(file, args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "cowfs %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// engineConfig builds the pool config for file, overriding
// DefaultConfig's capacity from a YAML file named by COWFS_CONFIG when
// that environment variable is set (see btree.LoadConfig).
func engineConfig(file string) (btree.Config, error) {
	configPath := os.Getenv("COWFS_CONFIG")
	if configPath == "" {
		return btree.DefaultConfig(file), nil
	}

	config, err := btree.LoadConfig(configPath)
	if err != nil {
		return btree.Config{}, fmt.Errorf("load %s: %w", configPath, err)
	}
	config.Path = file
	return config, nil
}

func usage() {
	fmt.Println("usage: cowfs <command> <file> [args...]")
	fmt.Println("commands:")
	fmt.Println("  init <file> <total-pages>")
	fmt.Println("  ls <file> <path>")
	fmt.Println("  mkdir <file> <path>")
	fmt.Println("  put <file> <path> <local-file>")
	fmt.Println("  cat <file> <path>")
	fmt.Println("  rm <file> <path>")
	fmt.Println("  stats <file>")
	fmt.Println()
	fmt.Println("set COWFS_CONFIG=<path.yaml> to override the pool's default capacity")
}

func cmdInit(file string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected <total-pages>")
	}
	totalPages, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad total-pages: %w", err)
	}

	config, err := engineConfig(file)
	if err != nil {
		return err
	}
	fs, err := objectfs.CreateFileSystem(config, totalPages)
	if err != nil {
		return err
	}
	defer fs.Close()

	fmt.Printf("initialized %s with %d pages, root directory at inode %d\n", file, totalPages, objectfs.RootInode)
	return nil
}

func cmdLs(file string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected <path>")
	}
	fs, err := openFS(file)
	if err != nil {
		return err
	}
	defer fs.Close()

	dirInode, err := resolveDir(fs, args[0])
	if err != nil {
		return err
	}

	entries, err := fs.List(dirInode)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "?"
		switch e.Type {
		case objectfs.TypeDirectory:
			kind = "d"
		case objectfs.TypeFile:
			kind = "f"
		}
		fmt.Printf("%s %8d  %s\n", kind, e.Child, e.Name)
	}
	return nil
}

func cmdMkdir(file string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected <path>")
	}
	fs, err := openFS(file)
	if err != nil {
		return err
	}
	defer fs.Close()

	parentInode, name, err := resolveParent(fs, args[0])
	if err != nil {
		return err
	}
	inode, err := fs.AddDirectory(parentInode, name)
	if err != nil {
		return err
	}
	fmt.Printf("mkdir %s -> inode %d\n", args[0], inode)
	return nil
}

func cmdPut(file string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("expected <path> <local-file>")
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	fs, err := openFS(file)
	if err != nil {
		return err
	}
	defer fs.Close()

	parentInode, name, err := resolveParent(fs, args[0])
	if err != nil {
		return err
	}

	inode, _, err := fs.Lookup(parentInode, name)
	if err != nil {
		inode, err = fs.AddFile(parentInode, name)
		if err != nil {
			return err
		}
	}

	if err := fs.WriteFile(inode, data, 0); err != nil {
		return err
	}
	fmt.Printf("put %s -> inode %d (%d bytes)\n", args[0], inode, len(data))
	return nil
}

func cmdCat(file string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected <path>")
	}
	fs, err := openFS(file)
	if err != nil {
		return err
	}
	defer fs.Close()

	parentInode, name, err := resolveParent(fs, args[0])
	if err != nil {
		return err
	}
	inode, _, err := fs.Lookup(parentInode, name)
	if err != nil {
		return err
	}
	data, err := fs.ReadFile(inode)
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	return nil
}

func cmdRm(file string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected <path>")
	}
	fs, err := openFS(file)
	if err != nil {
		return err
	}
	defer fs.Close()

	parentInode, name, err := resolveParent(fs, args[0])
	if err != nil {
		return err
	}
	if err := fs.Remove(parentInode, name); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", args[0])
	return nil
}

func cmdStats(file string, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments")
	}
	fs, err := openFS(file)
	if err != nil {
		return err
	}
	defer fs.Close()

	s := fs.Stats()
	fmt.Printf("reads:        %d\n", s.ReadCount)
	fmt.Printf("writes:       %d\n", s.WriteCount)
	fmt.Printf("disk size:    %d bytes\n", s.TotalDiskSize)
	fmt.Printf("write amp:    %.2fx\n", s.WriteAmp)
	fmt.Printf("space amp:    %.2fx\n", s.SpaceAmp)
	return nil
}

func openFS(file string) (*objectfs.FS, error) {
	config, err := engineConfig(file)
	if err != nil {
		return nil, err
	}
	return objectfs.Open(config)
}

// resolveDir walks path (slash-separated, relative to root) to a
// directory inode, following one directory entry per component.
func resolveDir(fs *objectfs.FS, path string) (uint64, error) {
	inode := objectfs.RootInode
	for _, part := range splitPath(path) {
		child, _, err := fs.Lookup(inode, part)
		if err != nil {
			return 0, err
		}
		inode = child
	}
	return inode, nil
}

// resolveParent splits path into its containing directory's inode and
// its final component, the name a create/remove/cat operation acts on.
func resolveParent(fs *objectfs.FS, path string) (uint64, string, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return 0, "", fmt.Errorf("empty path")
	}
	parentInode := objectfs.RootInode
	for _, part := range parts[:len(parts)-1] {
		child, _, err := fs.Lookup(parentInode, part)
		if err != nil {
			return 0, "", err
		}
		parentInode = child
	}
	return parentInode, parts[len(parts)-1], nil
}

func splitPath(path string) []string {
	var out []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
