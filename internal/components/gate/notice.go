package gate

import "sync/atomic"

// NoticeHandle identifies the posted gating notice.
type NoticeHandle struct {
	ChannelID string
	MessageID string
}

// Notice holds the gating notice handle. It is set once startup has
// posted the notice and read for every reaction.
type Notice struct {
	p atomic.Pointer[NoticeHandle]
}

// Set records the posted notice.
func (n *Notice) Set(h NoticeHandle) { n.p.Store(&h) }

// Get returns the handle and whether a notice was posted.
func (n *Notice) Get() (NoticeHandle, bool) {
	h := n.p.Load()
	if h == nil {
		return NoticeHandle{}, false
	}
	return *h, true
}

// Posted reports whether the notice is armed.
func (n *Notice) Posted() bool {
	return n.p.Load() != nil
}
