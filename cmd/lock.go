package main

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// acquireRunLock takes the exclusive ingest lock without waiting. The
// returned func releases it.
func acquireRunLock(path string) (func(), error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "create lock dir %s", dir)
		}
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, eris.Wrapf(err, "acquire run lock %s", path)
	}
	if !ok {
		return nil, eris.Errorf("another ingest run holds %s", path)
	}

	zap.L().Debug("run lock acquired", zap.String("lock", path))
	return func() {
		if err := lock.Unlock(); err != nil {
			zap.L().Warn("release run lock", zap.String("lock", path), zap.Error(err))
		}
	}, nil
}
