/*

Package `identity` answers who a user is relative to a group: member, reader,
manager, or admin.  It also knows the group naming scheme that the promotion
workflow relies on: `research-*` and `deposit-*` groups own folders,
`vault-*` groups own vault packages, and `datamanager-<category>` groups
review submissions for a category.

The directory is loaded from a YAML file.  The file is small and changes
rarely; daemons re-read it on restart.

*/
package identity

import (
	"fmt"
	"io/ioutil"
	"strings"

	yaml "gopkg.in/yaml.v2"
)

// `SystemUser` is the actor recorded for transitions that the system
// performs on behalf of no particular user.
const SystemUser = "system"

// Group name prefixes.
const (
	PrefixResearch    = "research-"
	PrefixDeposit     = "deposit-"
	PrefixVault       = "vault-"
	PrefixDatamanager = "datamanager-"
)

type Role int

const (
	RoleNone Role = iota
	RoleReader
	RoleNormal
	RoleManager
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleReader:
		return "reader"
	case RoleNormal:
		return "normal"
	case RoleManager:
		return "manager"
	default:
		return "invalid"
	}
}

type GroupConfig struct {
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Members  []string `yaml:"members"`
	Readers  []string `yaml:"readers"`
	Managers []string `yaml:"managers"`
}

type Config struct {
	Zone   string        `yaml:"zone"`
	Admins []string      `yaml:"admins"`
	Groups []GroupConfig `yaml:"groups"`
}

type Directory struct {
	zone   string
	admins map[string]struct{}
	groups map[string]*GroupConfig
}

func New(cfg *Config) (*Directory, error) {
	if cfg.Zone == "" {
		return nil, &ConfigError{Reason: "missing zone"}
	}
	d := &Directory{
		zone:   cfg.Zone,
		admins: make(map[string]struct{}),
		groups: make(map[string]*GroupConfig),
	}
	for _, a := range cfg.Admins {
		d.admins[a] = struct{}{}
	}
	for i, g := range cfg.Groups {
		if g.Name == "" {
			return nil, &ConfigError{Reason: "group without name"}
		}
		if _, ok := d.groups[g.Name]; ok {
			return nil, &ConfigError{Reason: fmt.Sprintf(
				"duplicate group `%s`", g.Name,
			)}
		}
		d.groups[g.Name] = &cfg.Groups[i]
	}
	return d, nil
}

func LoadFile(path string) (*Directory, error) {
	dat, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(dat, &cfg); err != nil {
		return nil, err
	}
	return New(&cfg)
}

func (d *Directory) Zone() string { return d.zone }

func (d *Directory) IsAdmin(user string) bool {
	_, ok := d.admins[user]
	return ok
}

func (d *Directory) RoleOf(user, group string) Role {
	g, ok := d.groups[group]
	if !ok {
		return RoleNone
	}
	for _, u := range g.Managers {
		if u == user {
			return RoleManager
		}
	}
	for _, u := range g.Members {
		if u == user {
			return RoleNormal
		}
	}
	for _, u := range g.Readers {
		if u == user {
			return RoleReader
		}
	}
	return RoleNone
}

// `Members()` returns managers and members, the users who get notifications
// addressed to the group.
func (d *Directory) Members(group string) []string {
	g, ok := d.groups[group]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var users []string
	for _, u := range append(append([]string{}, g.Managers...), g.Members...) {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		users = append(users, u)
	}
	return users
}

func (d *Directory) CategoryOf(group string) (string, bool) {
	g, ok := d.groups[group]
	if !ok || g.Category == "" {
		return "", false
	}
	return g.Category, true
}

// `DatamanagerGroup()` returns the datamanager group for a category if it is
// configured.  A missing datamanager group means submissions auto-advance.
func (d *Directory) DatamanagerGroup(category string) (string, bool) {
	name := PrefixDatamanager + category
	if _, ok := d.groups[name]; !ok {
		return "", false
	}
	return name, true
}

// `GroupOf()` derives the owning group from a collection path
// `/<zone>/home/<group>/...`.
func (d *Directory) GroupOf(path string) (string, error) {
	parts := strings.Split(path, "/")
	// parts[0] is empty for an absolute path.
	if len(parts) < 4 || parts[0] != "" {
		return "", &MalformedPathError{Path: path}
	}
	if parts[1] != d.zone || parts[2] != "home" || parts[3] == "" {
		return "", &MalformedPathError{Path: path}
	}
	return parts[3], nil
}

func (d *Directory) HomeOf(group string) string {
	return "/" + d.zone + "/home/" + group
}

func IsDepositGroup(group string) bool {
	return strings.HasPrefix(group, PrefixDeposit)
}

// `VaultGroupOf()` maps a research or deposit group to the vault group that
// receives its secured packages.
func VaultGroupOf(group string) string {
	switch {
	case strings.HasPrefix(group, PrefixResearch):
		return PrefixVault + strings.TrimPrefix(group, PrefixResearch)
	case strings.HasPrefix(group, PrefixDeposit):
		return PrefixVault + strings.TrimPrefix(group, PrefixDeposit)
	default:
		return PrefixVault + group
	}
}
