package index

import (
	"github.com/Aman-CERP/trenton/internal/media"
	"github.com/Aman-CERP/trenton/internal/store"
)

// Action is what reconciliation decided for one path.
type Action string

const (
	// ActionAdd embeds a path the store has never seen.
	ActionAdd Action = "add"
	// ActionUpdate re-embeds a known path whose content or state is stale.
	ActionUpdate Action = "update"
	// ActionSkip leaves a path untouched.
	ActionSkip Action = "skip"
	// ActionSoftDelete flags a known path that is gone from disk.
	ActionSoftDelete Action = "soft_delete"
	// ActionRestore revives a soft-deleted path whose content came back
	// unchanged, reusing its stored embedding.
	ActionRestore Action = "restore"
	// ActionIgnore drops a path that is outside every folder, has an
	// unrecognized extension, or is excluded by its folder's filter.
	ActionIgnore Action = "ignore"
)

// changesState reports whether a successful action counts as processed.
func (a Action) changesState() bool {
	switch a {
	case ActionAdd, ActionUpdate, ActionSoftDelete, ActionRestore:
		return true
	}
	return false
}

// observation is what reconciliation knows about one path.
type observation struct {
	// stored is the row for the path, nil when unknown.
	stored *store.MediaFile
	// onDisk is the current fingerprint, nil when the file is missing.
	onDisk *media.Fingerprint
	// hasEmbedding reports a stored vector for the current model version
	// whose hash matches the stored row.
	hasEmbedding bool
}

// decide classifies a path by comparing disk content with stored state.
//
//	missing on disk, live row      -> SoftDelete
//	missing on disk, no/dead row   -> Skip
//	on disk, no row                -> Add
//	on disk, deleted, same hash    -> Restore (Update if no vector)
//	on disk, indexed, same hash    -> Skip (Update if no vector)
//	otherwise                      -> Update
func decide(o observation) Action {
	if o.onDisk == nil {
		if o.stored != nil && !o.stored.Deleted {
			return ActionSoftDelete
		}
		return ActionSkip
	}
	if o.stored == nil {
		return ActionAdd
	}

	sameHash := o.stored.ContentHash != "" && o.stored.ContentHash == o.onDisk.Hash
	switch {
	case o.stored.Deleted && sameHash && o.hasEmbedding:
		return ActionRestore
	case o.stored.Deleted:
		return ActionUpdate
	case o.stored.Status == store.StatusIndexed && sameHash && o.hasEmbedding:
		return ActionSkip
	default:
		// pending, failed, changed, or missing a vector for this model
		return ActionUpdate
	}
}

// admits reports whether folder indexes a file of modality m.
func admits(folder *store.Folder, m media.Modality) bool {
	return folder != nil && m.Searchable() && folder.Filter.Allows(m)
}

// folderFor returns the deepest folder whose root contains path.
func folderFor(folders []store.Folder, path string) *store.Folder {
	var best *store.Folder
	for i := range folders {
		f := &folders[i]
		if !withinRoot(path, f.Path) {
			continue
		}
		if best == nil || len(f.Path) > len(best.Path) {
			best = f
		}
	}
	return best
}
