package hostfs

import (
	"io"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/bmbridge/bmbridge/internal/bridgeconfig"
)

// BillyFilesystem adapts a go-billy filesystem to bridgeconfig.Filesystem,
// the narrow surface the bootstrap YAML config is read through.
type BillyFilesystem struct {
	root billy.Filesystem
}

// NewBillyFilesystem builds a BillyFilesystem rooted at dir.
func NewBillyFilesystem(dir string) *BillyFilesystem {
	return &BillyFilesystem{root: osfs.New(dir)}
}

func (b *BillyFilesystem) Open(filename string) (io.ReadCloser, error) {
	return b.root.Open(filename)
}

var _ bridgeconfig.Filesystem = (*BillyFilesystem)(nil)
