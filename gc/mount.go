package gc

import (
	"strings"

	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"
)

// warnIfNoatime resolves the mount entry backing storePath and warns if
// it is mounted noatime, since the entire scoring heuristic is driven
// by filesystem access times (§4.2, §4.5): on a noatime mount every
// path's atime is frozen at whatever it was when last modified, which
// silently defeats "prefer evicting what hasn't been touched in a
// while" without any error ever surfacing.
func warnIfNoatime(storePath string, log *logrus.Logger) {
	mounts, err := mountinfo.GetMounts(nil)
	if err != nil {
		log.WithError(err).Debug("could not read mount table; skipping noatime check")
		return
	}

	var best *mountinfo.Info
	for _, m := range mounts {
		if !strings.HasPrefix(storePath, m.Mountpoint) {
			continue
		}
		if best == nil || len(m.Mountpoint) > len(best.Mountpoint) {
			best = m
		}
	}
	if best == nil {
		return
	}

	opts := best.Options + "," + best.VFSOptions
	if strings.Contains(opts, "noatime") {
		log.WithFields(logrus.Fields{
			"mountpoint": best.Mountpoint,
			"fstype":     best.FSType,
		}).Warn("nix store is mounted noatime; atime-based scoring will be ineffective")
	}
}
