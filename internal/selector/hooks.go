package selector

// Hooks receives selection events, typically to record metrics.
// Implementations must be safe for concurrent use and must not block.
type Hooks interface {
	// Resolved is called once per Resolve or Lookup with its result.
	Resolved(op Operation, res Resolution)

	// RegistryRebuilt is called after a registry snapshot is rebuilt from
	// selection mappings, with the size of the new candidate set.
	RegistryRebuilt(size int)
}

type noopHooks struct{}

func (noopHooks) Resolved(Operation, Resolution) {}
func (noopHooks) RegistryRebuilt(int)            {}
