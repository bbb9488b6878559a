package secrets

// Passphrase holds key-derivation material in a container that zeroes
// its backing memory on Destroy and deliberately has no String method.
type Passphrase struct {
	data []byte
}

// NewPassphrase takes ownership of b. The caller must not reuse b.
func NewPassphrase(b []byte) *Passphrase {
	return &Passphrase{data: b}
}

// Bytes exposes the raw material for key derivation. The returned slice
// aliases the container; do not retain it past the derivation call.
func (p *Passphrase) Bytes() []byte {
	return p.data
}

// Destroy zeroes the backing memory. The container is unusable after.
func (p *Passphrase) Destroy() {
	for i := range p.data {
		p.data[i] = 0
	}
	p.data = nil
}
