package main

import (
	"fmt"

	"github.com/rdvproject/rdv/backend/internal/vaults"
)

func cmdVault(args map[string]interface{}) {
	a := dial(args)
	defer a.close()

	var target vaults.Status
	switch {
	case args["submit"].(bool):
		target = vaults.StatusSubmittedForPublication
	case args["cancel"].(bool):
		target = vaults.StatusUnpublished
	case args["approve"].(bool):
		target = vaults.StatusApprovedForPublication
	case args["publish"].(bool):
		target = vaults.StatusPublished
	case args["depublish"].(bool):
		target = vaults.StatusPendingDepublication
	case args["complete-depublication"].(bool):
		target = vaults.StatusDepublished
	case args["republish"].(bool):
		target = vaults.StatusPendingRepublication
	default:
		lg.Fatalw("Unknown vault command.")
	}

	actor := args["--as"].(string)
	pkg := args["<package>"].(string)
	if err := a.vsm.Transition(actor, pkg, target); err != nil {
		lg.Fatalw("Transition failed.", "err", err)
	}
	st, err := a.vsm.Status(pkg)
	if err != nil {
		lg.Fatalw("Failed to read status.", "err", err)
	}
	fmt.Printf("vaultStatus: %s\n", st)
}
