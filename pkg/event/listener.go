package event

// Listener receives repository events. Implementations must be safe for
// concurrent use; the engine may deliver events from several goroutines.
type Listener interface {
	ArtifactDescriptorInvalid(Event)
	ArtifactDescriptorMissing(Event)
	MetadataInvalid(Event)
	ArtifactResolving(Event)
	ArtifactResolved(Event)
	MetadataResolving(Event)
	MetadataResolved(Event)
	ArtifactInstalling(Event)
	ArtifactInstalled(Event)
	MetadataInstalling(Event)
	MetadataInstalled(Event)
	ArtifactDeploying(Event)
	ArtifactDeployed(Event)
	MetadataDeploying(Event)
	MetadataDeployed(Event)
}

// Base implements [Listener] with no-ops. Embed it to handle a subset.
type Base struct{}

func (Base) ArtifactDescriptorInvalid(Event) {}
func (Base) ArtifactDescriptorMissing(Event) {}
func (Base) MetadataInvalid(Event)           {}
func (Base) ArtifactResolving(Event)         {}
func (Base) ArtifactResolved(Event)          {}
func (Base) MetadataResolving(Event)         {}
func (Base) MetadataResolved(Event)          {}
func (Base) ArtifactInstalling(Event)        {}
func (Base) ArtifactInstalled(Event)         {}
func (Base) MetadataInstalling(Event)        {}
func (Base) MetadataInstalled(Event)         {}
func (Base) ArtifactDeploying(Event)         {}
func (Base) ArtifactDeployed(Event)          {}
func (Base) MetadataDeploying(Event)         {}
func (Base) MetadataDeployed(Event)          {}

// Dispatch delivers e to the method of l matching its type. A nil listener
// is ignored.
func Dispatch(l Listener, e Event) {
	if l == nil {
		return
	}
	switch e.Type() {
	case ArtifactDescriptorInvalid:
		l.ArtifactDescriptorInvalid(e)
	case ArtifactDescriptorMissing:
		l.ArtifactDescriptorMissing(e)
	case MetadataInvalid:
		l.MetadataInvalid(e)
	case ArtifactResolving:
		l.ArtifactResolving(e)
	case ArtifactResolved:
		l.ArtifactResolved(e)
	case MetadataResolving:
		l.MetadataResolving(e)
	case MetadataResolved:
		l.MetadataResolved(e)
	case ArtifactInstalling:
		l.ArtifactInstalling(e)
	case ArtifactInstalled:
		l.ArtifactInstalled(e)
	case MetadataInstalling:
		l.MetadataInstalling(e)
	case MetadataInstalled:
		l.MetadataInstalled(e)
	case ArtifactDeploying:
		l.ArtifactDeploying(e)
	case ArtifactDeployed:
		l.ArtifactDeployed(e)
	case MetadataDeploying:
		l.MetadataDeploying(e)
	case MetadataDeployed:
		l.MetadataDeployed(e)
	}
}
