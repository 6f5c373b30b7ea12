/*
Package volume resolves a workload's VolumeMount sources to host-side
directories the Runtime Facade can bind-mount into a workload's container.

# Local Volume Driver

The local driver creates one directory per logical volume name under a base
path:

	/var/lib/nodeagent/volumes/
	├── postgres-data/
	│   └── data files...
	└── app-cache/
	    └── data files...

There is no volume metadata, no node affinity bookkeeping, and no database:
the agent has no persistent local state (see the Parameter Storage and
Workload Queue packages, which are purely in-memory for the same reason).
A volume's identity is its source name; Prepare is idempotent and safe to
call on every CreateWorkload for a mount whose directory already exists.

# Usage

	driver, err := volume.NewLocalDriver("")
	if err != nil {
		return err
	}

	hostPath, err := driver.Prepare("postgres-data")
	if err != nil {
		return err
	}
	// hostPath is ready to use as a bind-mount source.

# Container Runtime Integration

The containerd Runtime Facade backend resolves each VolumeMount before
building the container's OCI spec:

	for _, m := range spec.RuntimeConfig.Mounts {
		hostPath, err := vols.Prepare(m.Source)
		if err != nil {
			return err
		}
		mounts = append(mounts, specs.Mount{
			Source:      hostPath,
			Destination: m.Target,
			Type:        "bind",
			Options:     []string{"rbind"},
		})
	}

# Non-goals

This driver does not support network storage, snapshots, quotas, or
replication. Volume data is not cleaned up automatically when a workload
is removed; Delete is exposed for callers that want to reclaim the
directory explicitly.
*/
package volume
