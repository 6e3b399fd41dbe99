package executor

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vk/phylogrid/internal/job"
)

// statConcurrency bounds parallel stat calls for one job.
const statConcurrency = 8

// fileState is what the filesystem says about a job before it runs.
type fileState struct {
	// fresh is true when every output exists and is strictly newer than
	// every input.
	fresh bool
	// inputMB is the total size of the existing inputs in megabytes.
	inputMB float64
}

// inspect stats a job's inputs and outputs under dir.
func inspect(ctx context.Context, dir string, j *job.Job) (fileState, error) {
	ins, outs := j.InputPaths(), j.OutputPaths()
	inInfo := make([]fs.FileInfo, len(ins))
	outInfo := make([]fs.FileInfo, len(outs))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(statConcurrency)
	stat := func(dst []fs.FileInfo, i int, p string) {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fi, err := os.Stat(resolvePath(dir, p))
			switch {
			case err == nil:
				dst[i] = fi
			case !errors.Is(err, fs.ErrNotExist):
				return err
			}
			return nil
		})
	}
	for i, p := range ins {
		stat(inInfo, i, p)
	}
	for i, p := range outs {
		stat(outInfo, i, p)
	}
	if err := eg.Wait(); err != nil {
		return fileState{}, err
	}

	var (
		newest  time.Time
		size    int64
		missing bool
	)
	for _, fi := range inInfo {
		if fi == nil {
			missing = true
			continue
		}
		if !fi.IsDir() {
			size += fi.Size()
		}
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}

	fresh := !missing && len(outs) > 0
	for _, fi := range outInfo {
		if fi == nil || !fi.ModTime().After(newest) {
			fresh = false
		}
	}
	return fileState{fresh: fresh, inputMB: float64(size) / (1 << 20)}, nil
}

func resolvePath(dir, p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
