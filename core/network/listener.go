package network

// Listener receives every mutation of a network, synchronously, on the
// goroutine that performed it.
//
// Creation and removal are structural and never tied to a variant. Updates of
// static attributes arrive through OnUpdate; updates of variant-dependent
// attributes arrive through OnVariantUpdate with the id of the variant that
// was written.
type Listener interface {
	OnCreation(identifiable Identifiable)
	OnRemoval(identifiable Identifiable)
	OnUpdate(identifiable Identifiable, attribute string, oldValue, newValue any)
	OnVariantUpdate(identifiable Identifiable, attribute, variantID string, oldValue, newValue any)
	OnVariantCreated(sourceVariantID, targetVariantID string)
	OnVariantRemoved(variantID string)
}

// NopListener implements Listener with empty methods, for embedding.
type NopListener struct{}

func (NopListener) OnCreation(Identifiable)                                {}
func (NopListener) OnRemoval(Identifiable)                                 {}
func (NopListener) OnUpdate(Identifiable, string, any, any)                {}
func (NopListener) OnVariantUpdate(Identifiable, string, string, any, any) {}
func (NopListener) OnVariantCreated(string, string)                        {}
func (NopListener) OnVariantRemoved(string)                                {}
