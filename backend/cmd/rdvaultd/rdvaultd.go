// vim: sw=8

// Research-data vault copy daemon `rdvaultd`.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/rdvproject/rdv/backend/internal/acl"
	"github.com/rdvproject/rdv/backend/internal/avu"
	"github.com/rdvproject/rdv/backend/internal/folders"
	"github.com/rdvproject/rdv/backend/internal/identity"
	"github.com/rdvproject/rdv/backend/internal/metadata"
	"github.com/rdvproject/rdv/backend/internal/notify"
	"github.com/rdvproject/rdv/backend/internal/pid"
	"github.com/rdvproject/rdv/backend/internal/provenance"
	"github.com/rdvproject/rdv/backend/internal/secure"
	"github.com/rdvproject/rdv/backend/internal/svcconfig"
	"github.com/rdvproject/rdv/backend/internal/sweep"
	"github.com/rdvproject/rdv/backend/internal/tree"
	"github.com/rdvproject/rdv/backend/internal/vaults"
	"github.com/rdvproject/rdv/backend/pkg/flock"
	"github.com/rdvproject/rdv/backend/pkg/mgo"
	"github.com/rdvproject/rdv/backend/pkg/mulog"
	"github.com/rdvproject/rdv/backend/pkg/rate"
	"github.com/rdvproject/rdv/backend/pkg/zap"
)

// `xVersion` and `xBuild` are injected by the `Makefile`.
var (
	xVersion string
	xBuild   string
	version  = fmt.Sprintf("rdvaultd-%s+%s", xVersion, xBuild)
)

// `qqBackticks()` translates double single quote to backtick.
func qqBackticks(s string) string {
	return strings.Replace(s, "''", "`", -1)
}

var usage = qqBackticks(`Usage:
  rdvaultd [options] --state=<dir>
           [--prefix=<path>...]
           [--scan-start] [--scan-every=<interval>]

Options:
  --log=<logger>  [default: prod]
        Specify logger: prod, dev, or mu.
  --config=<file>  [default: /etc/rdv/rdvconfig.yml]
        Service config: group directory, MongoDB, PID service, and vault
        copy settings.  A DEPRECATED ''rdv.config.hcl'' next to the
        configured path is still recognized.
  --state=<dir>
        Directory that is locked with ''flock(2)'' to prevent a second
        daemon instance.
  --prefix=<path>
        Limits the sweep to folders whose paths are equal or below one of
        the prefixes.
  --scan-start
        Sweep scheduled folders during startup.
  --scan-every=<interval>  [default: 10m]
        Regularly sweep scheduled folders.
  --copy-bwlimit=<bytes-per-sec>
        Throttle the vault tree copy.  Unthrottled if unset.
  --sweep-min-rate=<hz>  [default: 0.1]
  --sweep-max-rate=<hz>  [default: 2]
        Bounds for the self-regulating limiter that paces ''secure()''
        invocations during a sweep.
  --shutdown-timeout=<duration>  [default: 1h]
        Maximum time to wait for a running vault copy before forced
        shutdown.

''rdvaultd'' watches for folders that have been accepted for the vault:
it periodically enumerates folders whose copy-cronjob attribute is
PENDING or RETRY and runs the secure workflow on each, one at a time.
Folders whose retry budget is exhausted are marked UNRECOVERABLE and
reported to the datamanagers; an operator resets them with ''rdvctl
retry-reset''.
`)

type Logger interface {
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
	Fatalw(msg string, kv ...interface{})
}

var lg Logger = mulog.Logger{}

func main() {
	args := argparse()
	initLogging(args["--log"].(string))

	// The scanner uses toplevel rand functions.  Init seed to avoid
	// repeating the same sweep order after restart.
	rand.Seed(time.Now().UnixNano())

	cfg, err := svcconfig.Load(lg, args["--config"].(string))
	if err != nil {
		lg.Fatalw("Failed to load config.", "err", err)
	}
	dir, err := identity.LoadFile(cfg.GroupsFile)
	if err != nil {
		lg.Fatalw("Failed to load groups file.", "err", err)
	}

	lock, err := flock.Open(args["--state"].(string))
	if err != nil {
		lg.Fatalw("Failed to open state dir.", "err", err)
	}
	defer lock.Close()
	lockCtx, cancelLock := context.WithTimeout(
		context.Background(), 10*time.Second,
	)
	err = lock.TryLock(lockCtx, time.Second)
	cancelLock()
	if err != nil {
		lg.Fatalw("Failed to lock state dir.", "err", err)
	}
	defer func() { _ = lock.Unlock() }()

	var conn *mgo.Session
	if cfg.Mongo.CA != "" || cfg.Mongo.Cert != "" {
		conn, err = mgo.DialCACert(
			cfg.Mongo.URI, cfg.Mongo.CA, cfg.Mongo.Cert,
		)
	} else {
		conn, err = mgo.Dial(cfg.Mongo.URI)
	}
	if err != nil {
		lg.Fatalw("Failed to connect to MongoDB.", "err", err)
	}
	defer conn.Close()

	lg.Infow("rdvaultd started.")

	ns := cfg.Mongo.Ns
	attrs := avu.NewMongo(conn, ns)
	prov := provenance.NewMongo(conn, ns)
	sink := notify.NewMongo(conn, ns)
	acls := acl.NewMongo(conn, ns)
	store := tree.NewMongo(conn, ns, &tree.MongoConfig{
		Compress: cfg.VaultCopy.Compress,
	})
	validator := &metadata.JSONValidator{
		Required: cfg.Metadata.RequiredFields,
	}

	fsm := folders.NewMachine(lg, &folders.MachineConfig{
		Directory:  dir,
		Attrs:      attrs,
		Provenance: prov,
		Notify:     sink,
		Tree:       store,
		Acl:        acls,
		Metadata:   validator,
	})
	vsm := vaults.NewMachine(lg, &vaults.MachineConfig{
		Directory:  dir,
		Attrs:      attrs,
		Provenance: prov,
		Notify:     sink,
		Tree:       store,
		Metadata:   validator,
	})

	var pidClient *pid.Client
	if cfg.Pid.BaseURL != "" {
		pidClient = pid.New(&pid.Config{
			BaseURL: cfg.Pid.BaseURL,
			Prefix:  cfg.Pid.Prefix,
		})
		lg.Infow("Enabled PID registration.", "url", cfg.Pid.BaseURL)
	}

	var bwlimit int64
	if a, ok := args["--copy-bwlimit"].(int64); ok {
		bwlimit = a
	}
	workflow := secure.New(lg, &secure.Config{
		Directory:              dir,
		Attrs:                  attrs,
		Folders:                fsm,
		Vaults:                 vsm,
		Tree:                   store,
		Provenance:             prov,
		Notify:                 sink,
		Acl:                    acls,
		Pid:                    pidClient,
		LandingBaseURL:         cfg.LandingBaseURL,
		MaxRetries:             cfg.VaultCopy.MaxRetries,
		Backoff:                cfg.Backoff(),
		CopyBytesPerSec:        bwlimit,
		GenerateDataPackageRef: true,
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM)
	signal.Notify(sigs, syscall.SIGINT)
	var isShutdown int32

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	ctxSlow, cancelSlow := context.WithCancel(context.Background())

	limiter := rate.NewLimiter(lg, rate.Config{
		Name:    "sweep",
		MinRate: args["--sweep-min-rate"].(rate.Limit),
		MaxRate: args["--sweep-max-rate"].(rate.Limit),
		Burst:   1,
		Tau:     time.Minute,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = limiter.Regulate(ctx)
	}()

	proc := sweep.NewProcessor(ctxSlow, lg, workflow)
	scanner := sweep.NewScanner(lg, &sweep.Config{
		Attrs:     attrs,
		Processor: proc,
		Interval:  args["--scan-every"].(time.Duration),
		Prefixes:  args["--prefix"].([]string),
		Limiter:   limiter,
	})

	if args["--scan-start"].(bool) {
		lg.Infow("Enabled initial sweep and regular sweeps.")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := scanner.Scan(ctx); err != nil {
				lg.Warnw("Initial sweep failed.", "err", err)
			}
		}()
	} else {
		lg.Infow("Enabled regular sweeps.")
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := scanner.Run(ctx)
		if err != context.Canceled {
			lg.Fatalw("Sweep scheduler failed.", "err", err)
		}
		if atomic.LoadInt32(&isShutdown) == 0 {
			lg.Fatalw("Unexpected sweep scheduler cancel.")
		}
	}()

	sig := <-sigs
	atomic.StoreInt32(&isShutdown, 1)

	done := make(chan struct{})
	go func() {
		cancel()
		wg.Wait()
		lg.Infow("Completed level 1 shutdown.")

		close(done)
	}()

	d := args["--shutdown-timeout"].(time.Duration)
	timeout := time.NewTimer(d)
	lg.Infow("Started graceful shutdown.", "sig", sig, "timeout", d)

	select {
	case <-timeout.C:
		cancelSlow()
		lg.Warnw("Timeout; forced shutdown.")
	case <-done:
		cancelSlow()
		lg.Infow("Completed graceful shutdown.")
	}
}

func initLogging(arg string) {
	var err error
	switch arg {
	case "prod":
		lg, err = zap.NewProduction()
	case "dev":
		lg, err = zap.NewDevelopment()
	case "mu":
		lg = mulog.Logger{}
	default:
		err = fmt.Errorf("Invalid --log option.")
	}
	if err != nil {
		log.Fatal(err)
	}
}

func argparse() map[string]interface{} {
	const autoHelp = true
	const noOptionFirst = false
	args, err := docopt.Parse(
		usage, nil, autoHelp, version, noOptionFirst,
	)
	if err != nil {
		lg.Fatalw("docopt failed", "err", err)
	}

	for _, k := range []string{
		"--shutdown-timeout",
		"--scan-every",
	} {
		if arg, ok := args[k].(string); ok {
			d, err := time.ParseDuration(arg)
			if err != nil {
				lg.Fatalw(
					fmt.Sprintf("Invalid %s", k),
					"err", err,
				)
			}
			args[k] = d
		}
	}

	for _, k := range []string{
		"--sweep-min-rate",
		"--sweep-max-rate",
	} {
		arg, ok := args[k].(string)
		if !ok {
			continue
		}
		hz, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			lg.Fatalw(fmt.Sprintf("Invalid %s", k), "err", err)
		}
		args[k] = rate.Limit(hz)
	}

	if arg, ok := args["--copy-bwlimit"].(string); ok {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			lg.Fatalw("Invalid --copy-bwlimit", "err", err)
		}
		args["--copy-bwlimit"] = n
	}

	return args
}
