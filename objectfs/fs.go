package objectfs

import (
	"github.com/intellect4all/cowtree/btree"
	"github.com/intellect4all/cowtree/common"
)

// CreateFileSystem initializes a fresh backing file with an empty index
// and a root directory at RootInode, mirroring the original's pairing
// of create_file_system followed immediately by create_root_directory.
func CreateFileSystem(config btree.Config, totalPages uint64) (*FS, error) {
	engine, err := btree.CreateFileSystem(config, totalPages)
	if err != nil {
		return nil, err
	}

	fs := New(engine)
	if err := fs.CreateRoot(); err != nil {
		engine.Close()
		return nil, err
	}
	return fs, nil
}

// Open reopens a backing file previously initialized by
// CreateFileSystem.
func Open(config btree.Config) (*FS, error) {
	engine, err := btree.Open(config)
	if err != nil {
		return nil, err
	}
	return New(engine), nil
}

// Close closes the underlying index engine, flushing and unlocking the
// backing file.
func (fs *FS) Close() error {
	return fs.engine.Close()
}

// Sync flushes dirty pages and fsyncs the backing file.
func (fs *FS) Sync() error {
	return fs.engine.Sync()
}

// Stats reports the underlying index engine's counters.
func (fs *FS) Stats() common.Stats {
	return fs.engine.Stats()
}
