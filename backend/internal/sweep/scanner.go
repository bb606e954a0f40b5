package sweep

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/rdvproject/rdv/backend/internal/avu"
	"github.com/rdvproject/rdv/backend/pkg/rate"
)

type Processing interface {
	ProcessFolder(ctx context.Context, folder string) error
}

type Config struct {
	Attrs     avu.Store
	Processor Processing

	// `Interval` is the pause between two scans.
	Interval time.Duration

	// `Prefixes` restricts the sweep; empty means all folders.
	Prefixes []string

	// `Limiter` paces `ProcessFolder()` calls; nil means unpaced.
	Limiter *rate.Limiter
}

type Scanner struct {
	lg       Logger
	attrs    avu.Store
	proc     Processing
	interval time.Duration
	prefixes []string
	limiter  *rate.Limiter
}

func NewScanner(lg Logger, cfg *Config) *Scanner {
	return &Scanner{
		lg:       lg,
		attrs:    cfg.Attrs,
		proc:     cfg.Processor,
		interval: cfg.Interval,
		prefixes: cfg.Prefixes,
		limiter:  cfg.Limiter,
	}
}

// `Run()` scans until the context is canceled.
func (s *Scanner) Run(ctx context.Context) error {
	for {
		if err := s.Scan(ctx); err != nil {
			if err == ctx.Err() {
				return err
			}
			s.lg.Errorw("Sweep failed.", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

// `Scan()` enumerates the folders whose cronjob attribute is PENDING or
// RETRY and processes each.  The start offset is randomized, so a folder
// that repeatedly fails cannot starve the folders behind it across
// restarts.
func (s *Scanner) Scan(ctx context.Context) error {
	folders, err := s.attrs.FindEntitiesByAttr(
		avu.AttrCronjobCopyToVault,
		avu.CronjobPending, avu.CronjobRetry,
	)
	if err != nil {
		return err
	}
	folders = selectPrefixes(folders, s.prefixes)
	if len(folders) == 0 {
		return nil
	}

	s.lg.Infow("Started sweep.", "nFolders", len(folders))
	for _, folder := range randRotate(folders) {
		if s.limiter != nil {
			if err := s.limiter.L.Wait(ctx); err != nil {
				return err
			}
		}
		if err := s.proc.ProcessFolder(ctx, folder); err != nil {
			return err
		}
		if s.limiter != nil {
			s.limiter.Success()
		}
	}
	s.lg.Infow("Completed sweep.", "nFolders", len(folders))
	return nil
}

func selectPrefixes(folders, prefixes []string) []string {
	if len(prefixes) == 0 {
		return folders
	}
	var sel []string
	for _, f := range folders {
		for _, pfx := range prefixes {
			if pathIsEqualOrBelowPrefix(f, pfx) {
				sel = append(sel, f)
				break
			}
		}
	}
	return sel
}

// `prefix` without trailing slash.
func pathIsEqualOrBelowPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	// Equal or slash right after prefix.
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

func randRotate(s []string) []string {
	if len(s) == 0 {
		return s
	}
	i := rand.Intn(len(s))
	return append(s[i:], s[0:i]...)
}
