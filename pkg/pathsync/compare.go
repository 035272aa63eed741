package pathsync

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
)

// compareFiles decides whether the replica file still matches the source file.
// Sizes are compared first; only files of equal, non-zero size are hashed.
// It returns the decision and the number of bytes read while hashing.
func (s *PathSyncer) compareFiles(ctx context.Context, srcPath string, srcSize int64, replicaPath string, replicaSize int64) (Decision, int64, error) {
	if srcSize != replicaSize {
		return ContentMismatch, 0, nil
	}
	if srcSize == 0 {
		return InSync, 0, nil
	}

	var srcSum, replicaSum []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		srcSum, err = s.fileMD5(gctx, srcPath)
		return err
	})
	g.Go(func() (err error) {
		replicaSum, err = s.fileMD5(gctx, replicaPath)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	hashed := srcSize * 2
	if !bytes.Equal(srcSum, replicaSum) {
		return ContentMismatch, hashed, nil
	}
	return InSync, hashed, nil
}

// fileMD5 streams the whole file through a pooled buffer into an MD5 digest.
func (s *PathSyncer) fileMD5(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := s.ioBufferPool.Copy(h, &contextReader{ctx: ctx, r: f}); err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return h.Sum(nil), nil
}

// contextReader stops a long read once its context is done, so a failed
// sibling digest does not keep the other one reading a large file to the end.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
