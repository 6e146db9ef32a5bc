// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package core

import (
	"context"
	"migration/app/config"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Sleeper pauses between mutating remote calls.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) pause(ctx context.Context, d config.Duration) error {
	return o.sleeper.Sleep(ctx, d.Std())
}

// datafilePause is longer for statistical formats that the repository ingests as tabular data.
func (o *Orchestrator) datafilePause(filename string) config.Duration {
	ext := strings.ToLower(filepath.Ext(filename))
	if slices.Contains(o.cfg.Pauses.LargeFileExtensions, ext) {
		return o.cfg.Pauses.LargeFile
	}
	return o.cfg.Pauses.Datafile
}
