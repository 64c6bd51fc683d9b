package serialdisk

// EventKind classifies a volume change.
type EventKind uint8

const (
	// EventContent means only file data changed, the directory tree is the same.
	EventContent EventKind = iota
	// EventStructure means the FAT or a directory may have changed.
	EventStructure
)

// Event describes a single mutation of the volume.
type Event struct {
	Kind EventKind
	// Path is the affected volume path if the mutation was done through a path based operation.
	Path string
	// Clusters lists the data clusters whose content was written.
	Clusters []Cluster
}

// Observer is notified synchronously after every mutation, before the mutating operation
// returns. The host tree exporter is the observer of a mounted volume.
//
// Errors returned by an observer are passed to the caller of the mutation. Observers must
// only return errors which make the volume unusable (ContractViolation); host side export
// problems have to be handled by the observer itself.
//
// Generated mock using mockgen:
//
//	mockgen -source=observer.go -destination=observer_mock_test.go -package serialdisk
type Observer interface {
	VolumeChanged(v *Volume, ev Event) error
}
