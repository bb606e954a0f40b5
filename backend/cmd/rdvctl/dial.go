package main

import (
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
	"github.com/rdvproject/rdv/backend/internal/tree"
	"github.com/rdvproject/rdv/backend/internal/vaults"
	"github.com/rdvproject/rdv/backend/pkg/mgo"
)

// `app` bundles the stores and state machines that the subcommands operate
// on.  It is the same wiring as in `rdvaultd`, without the sweep.
type app struct {
	conn  *mgo.Session
	cfg   *svcconfig.Config
	dir   *identity.Directory
	attrs avu.Store
	prov  provenance.Log
	sink  *notify.Mongo
	acls  acl.Manager
	store tree.Store
	fsm   *folders.Machine
	vsm   *vaults.Machine
}

func dial(args map[string]interface{}) *app {
	cfg, err := svcconfig.Load(lg, args["--config"].(string))
	if err != nil {
		lg.Fatalw("Failed to load config.", "err", err)
	}
	dir, err := identity.LoadFile(cfg.GroupsFile)
	if err != nil {
		lg.Fatalw("Failed to load groups file.", "err", err)
	}

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

	return &app{
		conn:  conn,
		cfg:   cfg,
		dir:   dir,
		attrs: attrs,
		prov:  prov,
		sink:  sink,
		acls:  acls,
		store: store,
		fsm:   fsm,
		vsm:   vsm,
	}
}

func (a *app) close() {
	a.conn.Close()
}

// `workflow()` builds the vault copy workflow for `rdvctl secure`.  Unlike
// `rdvaultd`, the copy is never throttled; the operator runs it deliberately.
func (a *app) workflow() *secure.Workflow {
	var pidClient *pid.Client
	if a.cfg.Pid.BaseURL != "" {
		pidClient = pid.New(&pid.Config{
			BaseURL: a.cfg.Pid.BaseURL,
			Prefix:  a.cfg.Pid.Prefix,
		})
	}
	return secure.New(lg, &secure.Config{
		Directory:              a.dir,
		Attrs:                  a.attrs,
		Folders:                a.fsm,
		Vaults:                 a.vsm,
		Tree:                   a.store,
		Provenance:             a.prov,
		Notify:                 a.sink,
		Acl:                    a.acls,
		Pid:                    pidClient,
		LandingBaseURL:         a.cfg.LandingBaseURL,
		MaxRetries:             a.cfg.VaultCopy.MaxRetries,
		Backoff:                a.cfg.Backoff(),
		GenerateDataPackageRef: true,
	})
}
