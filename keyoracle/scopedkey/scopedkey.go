// Package scopedkey provides a wipe-on-exit buffer abstraction for handling
// secret material (shares, reconstructed secrets, decrypted credentials)
// in memory for the shortest possible scope. The one-time recovery cache
// holds recovered plaintext in a Buffer so the bytes are zeroed whether
// the plaintext is fetched or expires unfetched.
package scopedkey

import "crypto/subtle"

// Buffer holds secret bytes and guarantees they are zeroed when Release is
// called. Buffer is not safe for concurrent use.
type Buffer struct {
	data    []byte
	release bool
}

// New copies src into a freshly allocated Buffer. The caller remains
// responsible for wiping src itself if it is independently sensitive.
func New(src []byte) *Buffer {
	b := &Buffer{data: make([]byte, len(src))}
	copy(b.data, src)
	return b
}

// Bytes returns the buffer's current contents. The returned slice aliases
// the Buffer's storage and becomes invalid after Release.
func (b *Buffer) Bytes() []byte {
	if b.release {
		return nil
	}
	return b.data
}

// Release zeroes the buffer's storage. It is idempotent and safe to call
// via defer immediately after New.
func (b *Buffer) Release() {
	if b.release {
		return
	}
	wipe(b.data)
	b.release = true
}

// wipe overwrites buf with zeroes in a way the compiler cannot prove
// dead and elide; subtle.ConstantTimeCopy forces the write to observe.
func wipe(buf []byte) {
	zero := make([]byte, len(buf))
	subtle.ConstantTimeCopy(1, buf, zero)
}

// With invokes fn with a Buffer copied from src, releasing it on return.
func With(src []byte, fn func(buf []byte) error) error {
	b := New(src)
	defer b.Release()
	return fn(b.Bytes())
}
