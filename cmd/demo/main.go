package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/intellect4all/cowtree/btree"
	"github.com/intellect4all/cowtree/objectfs"
)

func main() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("cowtree Demo: a copy-on-write B+-tree index and object layer")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	demoIndex()
	fmt.Println()
	demoObjectLayer()
}

func demoIndex() {
	fmt.Println("### Index Driver Demo ###")
	fmt.Println(strings.Repeat("-", 40))

	path := "./data-cowtree-index.db"
	defer os.Remove(path)

	config := btree.DefaultConfig(path)
	eng, err := btree.CreateFileSystem(config, 4096)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("created a fresh index (4096 page budget)")

	fmt.Println("\n[sequential insert]")
	const n = 64
	for i := uint64(0); i < n; i++ {
		if _, _, err := eng.Insert(i, i*10); err != nil {
			log.Fatal(err)
		}
	}
	fmt.Printf("inserted keys 0..%d, forcing at least one leaf split (FANOUT=%d)\n", n-1, btree.FANOUT)

	fmt.Println("\n[point lookups]")
	for _, k := range []uint64{0, 17, 63} {
		v, found, err := eng.Lookup(k)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("  lookup(%d) -> (%d, %v)\n", k, v, found)
	}

	fmt.Println("\n[replace]")
	old, replaced, err := eng.Insert(17, 999)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("  insert(17, 999) replaced=%v old_value=%d\n", replaced, old)

	fmt.Println("\n[delete down to root collapse]")
	for i := uint64(0); i < n-1; i++ {
		if _, _, err := eng.Remove(i); err != nil {
			log.Fatal(err)
		}
	}
	v, found, err := eng.Lookup(n - 1)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("  after removing keys 0..%d, remaining key %d still present: %v (value %d)\n", n-2, n-1, found, v)

	stats := eng.Stats()
	fmt.Println("\n[stats before close]")
	fmt.Printf("  reads=%d writes=%d disk_size=%d bytes\n", stats.ReadCount, stats.WriteCount, stats.TotalDiskSize)

	if err := eng.Close(); err != nil {
		log.Fatal(err)
	}

	fmt.Println("\n[reopen]")
	eng2, err := btree.Open(config)
	if err != nil {
		log.Fatal(err)
	}
	defer eng2.Close()
	v, found, err = eng2.Lookup(n - 1)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("  reopened index still finds key %d: %v (value %d)\n", n-1, found, v)
}

func demoObjectLayer() {
	fmt.Println("### Object Layer Demo ###")
	fmt.Println(strings.Repeat("-", 40))

	path := "./data-cowtree-fs.db"
	defer os.Remove(path)

	config := btree.DefaultConfig(path)
	fs, err := objectfs.CreateFileSystem(config, 4096)
	if err != nil {
		log.Fatal(err)
	}
	defer fs.Close()

	fmt.Println("created filesystem with root directory at inode", objectfs.RootInode)

	docsInode, err := fs.AddDirectory(objectfs.RootInode, "docs")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("mkdir /docs -> inode %d\n", docsInode)

	readmeInode, err := fs.AddFile(docsInode, "readme.txt")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("touch /docs/readme.txt -> inode %d\n", readmeInode)

	if err := fs.WriteFile(readmeInode, []byte("cow-fs demo file\n"), 0); err != nil {
		log.Fatal(err)
	}
	if err := fs.AppendFile(readmeInode, []byte("second line\n")); err != nil {
		log.Fatal(err)
	}

	data, err := fs.ReadFile(readmeInode)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("cat /docs/readme.txt ->\n%s", string(data))

	entries, err := fs.List(objectfs.RootInode)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("ls / ->")
	for _, e := range entries {
		kind := "?"
		switch e.Type {
		case objectfs.TypeDirectory:
			kind = "d"
		case objectfs.TypeFile:
			kind = "f"
		}
		fmt.Printf("  %s %s (inode %d)\n", kind, e.Name, e.Child)
	}
}
