package consensus

import (
	"github.com/stormzy/iroha/pkg/stream"
)

// SoloGate is a HashGate for a single-peer network: every vote commits
// immediately. It exists for development runs and tests; a real deployment
// plugs in a byzantine fault tolerant implementation.
type SoloGate struct {
	outcomes *stream.Subject[AgreementResult]
	votes    chan Hash
	done     chan struct{}
}

func NewSoloGate() *SoloGate {
	g := &SoloGate{
		outcomes: stream.NewSubject[AgreementResult](),
		votes:    make(chan Hash, 16),
		done:     make(chan struct{}),
	}
	go g.run()
	return g
}

// Vote schedules an immediate commit for the hash. The outcome is published
// from the gate's own goroutine, never from inside Vote.
func (g *SoloGate) Vote(hash Hash, _ ClusterOrder) {
	select {
	case g.votes <- hash:
	case <-g.done:
	}
}

func (g *SoloGate) Outcomes() *stream.Subject[AgreementResult] {
	return g.outcomes
}

func (g *SoloGate) Close() {
	close(g.done)
}

func (g *SoloGate) run() {
	for {
		select {
		case hash := <-g.votes:
			g.outcomes.Publish(AgreementResult{
				Commit: true,
				Votes:  []VoteMessage{{Hash: hash}},
			})
		case <-g.done:
			return
		}
	}
}
