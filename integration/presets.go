package integration

import "fmt"

// StorePreset bundles the snapshot store's sizing knobs into a named profile
// so operators pick a footprint instead of tuning individual flags. The
// profile feeds snapstore.NewLevelDBStore directly.
type StorePreset struct {
	Name    string // profile identifier surfaced in logs and config dumps
	CacheMB int    // LevelDB block cache budget
	Handles int    // open file handle budget
}

// DefaultPreset is the balanced profile for ordinary validator nodes.
func DefaultPreset() StorePreset {
	return StorePreset{
		Name:    "default",
		CacheMB: 256,
		Handles: 256,
	}
}

// LitePreset shrinks the store for development machines, CI runs and
// disposable fakenet nodes. Snapshots are a single record, so even this
// profile leaves headroom on small chains.
func LitePreset() StorePreset {
	return StorePreset{
		Name:    "lite",
		CacheMB: 64,
		Handles: 64,
	}
}

// FullPreset sizes the store for long-lived production validators where
// commit latency matters more than memory.
func FullPreset() StorePreset {
	return StorePreset{
		Name:    "full",
		CacheMB: 1024,
		Handles: 512,
	}
}

// GetPresetByName looks up a store preset by its identifier. It backs CLI
// flags like --db.preset=lite.
func GetPresetByName(name string) (StorePreset, error) {
	switch name {
	case "lite":
		return LitePreset(), nil
	case "full":
		return FullPreset(), nil
	case "default":
		return DefaultPreset(), nil
	default:
		return StorePreset{}, fmt.Errorf("unknown preset: %q (valid: lite, full, default)", name)
	}
}

// ApplyPreset fills the zero fields of target from preset, so explicit
// overrides survive and the profile supplies the rest.
func ApplyPreset(target *StorePreset, preset StorePreset) {
	if target.Name == "" {
		target.Name = preset.Name
	}
	if target.CacheMB == 0 {
		target.CacheMB = preset.CacheMB
	}
	if target.Handles == 0 {
		target.Handles = preset.Handles
	}
}
