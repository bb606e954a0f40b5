package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rdvproject/rdv/backend/internal/avu"
	"github.com/rdvproject/rdv/backend/internal/folders"
	"github.com/rdvproject/rdv/backend/internal/identity"
	"github.com/rdvproject/rdv/backend/internal/secure"
)

func cmdStatus(args map[string]interface{}) {
	a := dial(args)
	defer a.close()

	folder := args["<folder>"].(string)
	st, err := a.fsm.Status(folder)
	if err != nil {
		lg.Fatalw("Failed to read status.", "err", err)
	}
	locks, err := a.fsm.Locks().GetLocks(folder)
	if err != nil {
		lg.Fatalw("Failed to read locks.", "err", err)
	}

	jout := json.NewEncoder(os.Stdout)
	jout.SetEscapeHTML(false)
	fields := []struct {
		k string
		v interface{}
	}{
		{"folder", folder},
		{"status", st.String()},
		{"locks", locks},
	}
	for _, attr := range []struct{ k, name string }{
		{"cronjobCopyToVault", avu.AttrCronjobCopyToVault},
		{"copyRetryCount", avu.AttrCopyRetryCount},
		{"copyLastRun", avu.AttrCopyLastRun},
		{"copyTarget", avu.AttrCopyTarget},
		{"vaultPackage", avu.AttrVaultPackage},
		{"submittedBy", avu.AttrSubmittedBy},
		{"acceptedBy", avu.AttrAcceptedBy},
	} {
		v, ok, err := a.attrs.Get(folder, attr.name)
		if err != nil {
			lg.Fatalw("Failed to read attribute.", "err", err)
		}
		if !ok {
			continue
		}
		if attr.name == avu.AttrCopyLastRun {
			if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
				v = time.Unix(sec, 0).UTC().Format(
					time.RFC3339,
				)
			}
		}
		fields = append(fields, struct {
			k string
			v interface{}
		}{attr.k, v})
	}
	if pkg, ok, err := a.attrs.Get(
		folder, avu.AttrVaultPackage,
	); err == nil && ok {
		vst, err := a.vsm.Status(pkg)
		if err != nil {
			lg.Fatalw("Failed to read vault status.", "err", err)
		}
		fields = append(fields, struct {
			k string
			v interface{}
		}{"vaultStatus", vst.String()})
	}

	for _, f := range fields {
		fmt.Printf("%s: ", f.k)
		if err := jout.Encode(f.v); err != nil {
			lg.Fatalw("Failed to encode JSON.", "err", err)
		}
	}
}

func cmdFolderTransition(args map[string]interface{}) {
	a := dial(args)
	defer a.close()

	var target folders.Status
	switch {
	case args["lock"].(bool):
		target = folders.StatusLocked
	case args["unlock"].(bool), args["unsubmit"].(bool):
		target = folders.StatusFolder
	case args["submit"].(bool):
		target = folders.StatusSubmitted
	case args["accept"].(bool):
		target = folders.StatusAccepted
	case args["reject"].(bool):
		target = folders.StatusRejected
	default:
		lg.Fatalw("Unknown folder command.")
	}

	actor := args["--as"].(string)
	folder := args["<folder>"].(string)
	if err := a.fsm.Transition(actor, folder, target); err != nil {
		lg.Fatalw("Transition failed.", "err", err)
	}
	st, err := a.fsm.Status(folder)
	if err != nil {
		lg.Fatalw("Failed to read status.", "err", err)
	}
	fmt.Printf("status: %s\n", st)
}

func cmdSecure(args map[string]interface{}) {
	a := dial(args)
	defer a.close()

	folder := args["<folder>"].(string)
	err := a.workflow().Secure(
		context.Background(), identity.SystemUser, folder,
	)
	switch {
	case err == nil:
		fmt.Println("secured")
	case secure.IsPrecheckError(err):
		lg.Fatalw("Folder not eligible.", "reason", err)
	default:
		lg.Fatalw("Secure failed.", "err", err)
	}
}

// `cmdRetryReset()` reschedules a folder whose vault copy gave up.  It clears
// the retry bookkeeping and marks the cronjob attribute PENDING again, so the
// next `rdvaultd` sweep picks the folder up.
func cmdRetryReset(args map[string]interface{}) {
	a := dial(args)
	defer a.close()

	folder := args["<folder>"].(string)
	v, ok, err := a.attrs.Get(folder, avu.AttrCronjobCopyToVault)
	if err != nil {
		lg.Fatalw("Failed to read attribute.", "err", err)
	}
	if !ok {
		lg.Fatalw("Folder is not scheduled for a vault copy.")
	}
	if v != avu.CronjobUnrecoverable && v != avu.CronjobRetry {
		lg.Fatalw(
			"Refusing reset; no failed copy.",
			"cronjobCopyToVault", v,
		)
	}

	for _, attr := range []string{
		avu.AttrCopyRetryCount,
		avu.AttrCopyLastRun,
	} {
		if err := a.attrs.Remove(folder, attr); err != nil {
			lg.Fatalw("Failed to remove attribute.", "err", err)
		}
	}
	err = a.attrs.Set(
		folder, avu.AttrCronjobCopyToVault, avu.CronjobPending,
	)
	if err != nil {
		lg.Fatalw("Failed to set attribute.", "err", err)
	}
	fmt.Println("rescheduled")
}

func cmdProvenance(args map[string]interface{}) {
	a := dial(args)
	defer a.close()

	recs, err := a.prov.List(args["<path>"].(string))
	if err != nil {
		lg.Fatalw("Failed to read provenance log.", "err", err)
	}

	jout := json.NewEncoder(os.Stdout)
	jout.SetEscapeHTML(false)
	for _, r := range recs {
		err := jout.Encode(map[string]interface{}{
			"id":     r.Id.String(),
			"actor":  r.Actor,
			"action": r.Action,
			"time":   r.Time.UTC().Format(time.RFC3339),
		})
		if err != nil {
			lg.Fatalw("Failed to encode JSON.", "err", err)
		}
	}
}

func cmdNotifications(args map[string]interface{}) {
	a := dial(args)
	defer a.close()

	ntfs, err := a.sink.ListFor(args["<user>"].(string))
	if err != nil {
		lg.Fatalw("Failed to read notifications.", "err", err)
	}

	jout := json.NewEncoder(os.Stdout)
	jout.SetEscapeHTML(false)
	for _, n := range ntfs {
		err := jout.Encode(map[string]interface{}{
			"id":      n.Id.String(),
			"actor":   n.Actor,
			"target":  n.TargetRef,
			"message": n.Message,
			"time":    n.Time.UTC().Format(time.RFC3339),
		})
		if err != nil {
			lg.Fatalw("Failed to encode JSON.", "err", err)
		}
	}
}
