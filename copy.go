package partialzip

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/meigma/partialzip/internal/pathutil"
	"github.com/meigma/partialzip/internal/sink"
	"github.com/meigma/partialzip/internal/ziptype"
)

// DownloadToDir saves each named entry into dir under the last element of
// its name ("docs/readme.md" becomes dir/readme.md).
//
// The archive's central directory is read once for the whole call and the
// entries are downloaded one after another in the order given. Every output
// path is checked before any request is made. The first failure stops the
// call; the results completed before it are returned with the error.
//
// The options apply to every entry.
func (e *Engine) DownloadToDir(ctx context.Context, url string, names []string, dir string, opts ...DownloadOption) ([]*Result, error) {
	if len(names) == 0 {
		return nil, nil
	}
	cfg := newDownloadConfig(opts)

	paths, err := outputPaths(names, dir, cfg.overwrite)
	if err != nil {
		return nil, err
	}

	a, err := e.open(ctx, url, cfg.progress)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(names))
	for i, name := range names {
		entry, err := e.resolveFor(a, name, cfg)
		if err != nil {
			return results, err
		}
		result, err := e.save(ctx, a, &entry, paths[i], cfg)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// outputPaths maps names to files in dir and rejects collisions and
// existing outputs.
func outputPaths(names []string, dir string, overwrite bool) ([]string, error) {
	paths := make([]string, len(names))
	owners := make(map[string]string, len(names))
	for i, name := range names {
		base, ok := pathutil.FileName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q does not name a file", ziptype.ErrEntryNotFound, name)
		}
		path := filepath.Join(dir, base)
		if prev, dup := owners[path]; dup {
			return nil, fmt.Errorf("%w: %q and %q both save to %s", ziptype.ErrOutputExists, prev, name, path)
		}
		owners[path] = name
		if err := sink.NewFile(path, sink.WithOverwrite(overwrite)).Check(); err != nil {
			return nil, err
		}
		paths[i] = path
	}
	return paths, nil
}
