package server

import (
	"github.com/sourcegraph/conc/pool"

	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/session"
)

// broadcastFanout is the maximum number of concurrent socket writes a single
// broadcast enumerates (§9 "Broadcasts as snapshots": enumerate under lock,
// then drop the lock before writing to sockets; per-socket send queues
// decouple slow peers from fast peers). A bounded pool keeps one very slow
// peer from serializing delivery to everyone else behind it, the same
// motivation the teacher's corpus uses sourcegraph/conc for.
const broadcastFanout = 32

// fanOutFrame writes msgType/payload to every session in recipients using a
// bounded worker pool instead of a sequential loop, so a single stalled
// socket cannot hold up delivery to the rest of a large channel or the
// server-wide user_list.
func fanOutFrame(recipients []*session.Session, msgType string, payload []byte) {
	if len(recipients) == 0 {
		return
	}
	p := pool.New().WithMaxGoroutines(broadcastFanout)
	for _, sess := range recipients {
		sess := sess
		p.Go(func() {
			_ = sess.Writer.WriteFrame(msgType, frame.NewMsgID(), payload)
		})
	}
	p.Wait()
}
