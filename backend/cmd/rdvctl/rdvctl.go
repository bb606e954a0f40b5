// vim: sw=8

// Command `rdvctl` to inspect and control research folders and vault
// packages.
package main

import (
	"fmt"
	"os/user"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/rdvproject/rdv/backend/pkg/mulog"
)

// `xVersion` and `xBuild` are injected by the `Makefile`.
var (
	xVersion string
	xBuild   string
	version  = fmt.Sprintf("rdvctl-%s+%s", xVersion, xBuild)
)

// `qqBackticks()` translates double single quote to backtick.
func qqBackticks(s string) string {
	return strings.Replace(s, "''", "`", -1)
}

var usage = qqBackticks(`Usage:
  rdvctl [options] status <folder>
  rdvctl [options] lock <folder>
  rdvctl [options] unlock <folder>
  rdvctl [options] submit <folder>
  rdvctl [options] unsubmit <folder>
  rdvctl [options] accept <folder>
  rdvctl [options] reject <folder>
  rdvctl [options] secure <folder>
  rdvctl [options] retry-reset <folder>
  rdvctl [options] provenance <path>
  rdvctl [options] notifications <user>
  rdvctl [options] vault <package> submit
  rdvctl [options] vault <package> cancel
  rdvctl [options] vault <package> approve
  rdvctl [options] vault <package> publish
  rdvctl [options] vault <package> depublish
  rdvctl [options] vault <package> complete-depublication
  rdvctl [options] vault <package> republish

Options:
  --config=<file>  [default: /etc/rdv/rdvconfig.yml]
        Service config; see ''rdvaultd --help''.
  --as=<user>
        Act as ''<user>''.  The default is the calling OS user.
        ''secure'' and ''retry-reset'' always act as the system user.

''rdvctl'' operates directly on the attribute store, using the same
policy checks as the regular frontend.  ''status'' prints the folder
status together with the vault copy bookkeeping.  ''secure'' runs the
vault copy workflow once, in the foreground, which can be useful to
debug a folder without waiting for the next ''rdvaultd'' sweep.
''retry-reset'' reschedules a folder whose copy has been marked
UNRECOVERABLE.

''vault <package> publish'' commits both the initial publication and
the final step of a republication.
`)

type Logger interface {
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
	Fatalw(msg string, kv ...interface{})
}

var lg Logger = mulog.Printer{}

func main() {
	args := argparse()
	switch {
	case args["status"].(bool):
		cmdStatus(args)
	case args["secure"].(bool):
		cmdSecure(args)
	case args["retry-reset"].(bool):
		cmdRetryReset(args)
	case args["provenance"].(bool):
		cmdProvenance(args)
	case args["notifications"].(bool):
		cmdNotifications(args)
	case args["vault"].(bool):
		cmdVault(args)
	default:
		cmdFolderTransition(args)
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

	if _, ok := args["--as"].(string); !ok {
		u, err := user.Current()
		if err != nil {
			lg.Fatalw(
				"Failed to determine calling user; use --as.",
				"err", err,
			)
		}
		args["--as"] = u.Username
	}

	return args
}
