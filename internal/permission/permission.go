// Package permission implements the external "permission check hook"
// referenced by spec §6/§7: procedures carry a textual permission tag, and
// a caller lacking that tag is refused with no side effects. It is
// modelled directly on rcproxy's core/authip package — a YAML-backed
// allow-list held in a lock-striped concurrent map, hot-reloaded with
// fsnotify — except the set holds permission tags a caller has been
// granted instead of allowed source IPs.
package permission

import (
	"os"
	"path"

	"github.com/cornelk/hashmap"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"mulex/internal/logging"
)

// Registry tracks which permission tags each caller (by ClientId) holds.
// An empty/absent registry means "no restriction", matching the teacher's
// authip.ipMap.enable=false fallback.
type Registry struct {
	enabled bool
	path    string
	name    string

	// clientId -> *hashmap.HashMap of tag -> struct{}
	grants hashmap.HashMap
}

type whitelistFile struct {
	Enable bool                `yaml:"enable"`
	Grants map[uint64][]string `yaml:"grants"`
}

func New() *Registry {
	return &Registry{}
}

// Load parses confPath/confName and starts watching it for changes.
func (r *Registry) Load(confPath, confName string) error {
	r.path = confPath
	r.name = path.Join(confPath, confName)
	if err := r.parse(); err != nil {
		return err
	}
	return r.watch()
}

func (r *Registry) parse() error {
	file, err := os.ReadFile(r.name)
	if err != nil {
		return errors.Wrapf(err, "failed to read file from %s", r.name)
	}
	var wl whitelistFile
	if err := yaml.Unmarshal(file, &wl); err != nil {
		return errors.Wrapf(err, "failed to unmarshal permission whitelist from %s", r.name)
	}

	r.enabled = wl.Enable
	if !r.enabled {
		return nil
	}

	for cid, tags := range wl.Grants {
		set := &hashmap.HashMap{}
		for _, t := range tags {
			set.Set(t, struct{}{})
		}
		r.grants.Set(cid, set)
	}
	return nil
}

func (r *Registry) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(r.path); err != nil {
		return err
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != r.name {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Rename) != 0 {
					if err := r.parse(); err != nil {
						logging.Errorf("permission: reload failed, err: %s", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.Errorf("permission: watcher error, err: %s", err)
			}
		}
	}()
	return nil
}

// Allow reports whether the caller may invoke a procedure tagged with tag.
// With the whitelist disabled (the default, no config present) every tag
// is allowed — authentication is explicitly a Non-goal, only the tag gate
// is honored.
func (r *Registry) Allow(caller uint64, tag string) bool {
	if !r.enabled || tag == "" {
		return true
	}
	v, ok := r.grants.Get(caller)
	if !ok {
		return false
	}
	set := v.(*hashmap.HashMap)
	_, ok = set.Get(tag)
	return ok
}
